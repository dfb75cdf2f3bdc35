package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/backends"
	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/metadata"
	"github.com/soltixdb/unistor/internal/registry"
	"github.com/soltixdb/unistor/internal/services"
)

const gib = uint64(1) << 30

type testEnv struct {
	reg     *registry.Registry
	set     *backends.Set
	handler *Handler
	app     *fiber.App
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.reg = registry.New(registry.WithLogger(logging.NewNop()), registry.WithClock(clock))
	ledger := backends.NewLedger(env.reg)
	set, err := backends.NewSet(backends.PlatformNone, ledger)
	require.NoError(t, err)
	env.set = set

	engine := allocation.NewEngine(env.reg,
		allocation.WithLogger(logging.NewNop()),
		allocation.WithClock(clock),
		allocation.WithStaleness(2*time.Minute),
		allocation.WithReservations(set))
	records := metadata.NewRecords(metadata.NewMemoryStore(), "")
	svc := newTestProvisioning(engine, set, records)

	env.handler = New(logging.NewNop(), env.reg, engine, allocation.NewCapacityCache(engine), svc)
	env.handler.now = clock

	app := fiber.New()
	app.Get("/health", env.handler.Health)
	app.Get("/ready", env.handler.Ready)
	app.Get("/v1/nodes", env.handler.ListNodes)
	app.Get("/v1/nodes/:name", env.handler.GetNode)
	app.Put("/v1/nodes/:name", env.handler.IngestNode)
	app.Delete("/v1/nodes/:name", env.handler.DeleteNode)
	app.Post("/v1/nodes/:name/classify", env.handler.ClassifyNode)
	app.Put("/v1/nodes/:name/drives/:drive/metrics", env.handler.UpdateDriveMetrics)
	app.Get("/v1/pools", env.handler.ListPools)
	app.Get("/v1/pools/:name", env.handler.GetPool)
	app.Get("/v1/capacity", env.handler.GetCapacity)
	app.Post("/v1/storage", env.handler.CreateStorage)
	app.Get("/v1/storage", env.handler.ListStorage)
	app.Get("/v1/storage/:id", env.handler.GetStorage)
	app.Delete("/v1/storage/:id", env.handler.DeleteStorage)
	app.Use(env.handler.NotFound)
	env.app = app
	return env
}

func newTestProvisioning(engine *allocation.Engine, set *backends.Set, records *metadata.Records) *services.ProvisioningService {
	return services.NewProvisioningService(logging.NewNop(), engine, set, records, 3)
}

func (e *testEnv) ingest(t *testing.T, nodeID string, facts ...hardware.DriveFacts) {
	t.Helper()
	_, err := e.reg.Ingest(nodeID, facts)
	require.NoError(t, err)
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func drive(id string, dt hardware.DriveType, capacity uint64) hardware.DriveFacts {
	return hardware.DriveFacts{
		DriveID:       id,
		DriveType:     dt,
		CapacityBytes: capacity,
		SmartHealth:   hardware.HealthHealthy,
	}
}
