package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/utils"
)

// MetricsSink receives drive samples; *registry.Registry satisfies it
type MetricsSink interface {
	UpdateMetrics(nodeID, driveID string, m hardware.DriveMetrics) (uint64, error)
}

// DriveLister names the drives to sample
type DriveLister interface {
	Get(nodeID string) (hardware.NodeState, bool)
}

// blockStat holds the cumulative counters of /sys/block/<dev>/stat
type blockStat struct {
	ios     uint64 // reads + writes completed
	sectors uint64 // sectors read + written
	ticksMs uint64 // time spent doing I/O
	at      time.Time
}

// Sampler turns block stat counter deltas into DriveMetrics
type Sampler struct {
	nodeID   string
	scanner  *Scanner
	nodes    DriveLister
	sink     MetricsSink
	interval time.Duration
	now      func() time.Time
	logger   *logging.Logger

	mu   sync.Mutex
	prev map[string]blockStat
}

// NewSampler creates a sampler for the drives registered under nodeID
func NewSampler(nodeID string, scanner *Scanner, nodes DriveLister, sink MetricsSink, interval time.Duration, logger *logging.Logger) *Sampler {
	return &Sampler{
		nodeID:   nodeID,
		scanner:  scanner,
		nodes:    nodes,
		sink:     sink,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "discovery.sampler", "node_id", nodeID),
		prev:     make(map[string]blockStat),
	}
}

// Run samples every interval until ctx is done
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SampleOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SampleOnce()
		}
	}
}

// SampleOnce reads every registered drive's stat file. The first reading of
// a drive only primes the baseline. Returns the number of samples sent.
func (s *Sampler) SampleOnce() int {
	node, ok := s.nodes.Get(s.nodeID)
	if !ok {
		return 0
	}

	sent := 0
	for _, driveID := range node.SortedDriveIDs() {
		cur, err := s.read(driveID)
		if err != nil {
			s.logger.Debug("Failed to read block stat", "drive_id", driveID, "error", err)
			continue
		}

		s.mu.Lock()
		prev, primed := s.prev[driveID]
		s.prev[driveID] = cur
		s.mu.Unlock()
		if !primed {
			continue
		}

		m, ok := delta(prev, cur)
		if !ok {
			continue
		}
		if _, err := s.sink.UpdateMetrics(s.nodeID, driveID, m); err != nil {
			s.logger.Warn("Failed to update drive metrics", "drive_id", driveID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Sampler) read(driveID string) (blockStat, error) {
	raw, err := readAttr(s.scanner.BlockDir(driveID), "stat")
	if err != nil {
		return blockStat{}, err
	}
	return parseStat(raw, s.now())
}

// parseStat reads fields 1, 3, 5, 7 and 10 of the kernel block stat line
func parseStat(raw string, at time.Time) (blockStat, error) {
	fields := strings.Fields(raw)
	if len(fields) < 10 {
		return blockStat{}, fmt.Errorf("short stat line: %d fields", len(fields))
	}
	var v [10]uint64
	for i := 0; i < 10; i++ {
		n, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return blockStat{}, fmt.Errorf("invalid stat field %d: %w", i+1, err)
		}
		v[i] = n
	}
	return blockStat{
		ios:     v[0] + v[4],
		sectors: v[2] + v[6],
		ticksMs: v[9],
		at:      at,
	}, nil
}

// delta is false when time did not advance or a counter went backwards
// (device reset)
func delta(prev, cur blockStat) (hardware.DriveMetrics, bool) {
	elapsed := cur.at.Sub(prev.at)
	if elapsed < time.Millisecond || cur.ios < prev.ios || cur.sectors < prev.sectors || cur.ticksMs < prev.ticksMs {
		return hardware.DriveMetrics{}, false
	}
	secs := elapsed.Seconds()
	util := float64(cur.ticksMs-prev.ticksMs) / (secs * 1000)
	if util > 1 {
		util = 1
	}
	return hardware.DriveMetrics{
		IOPS:          uint64(float64(cur.ios-prev.ios) / secs),
		ThroughputBps: uint64(float64((cur.sectors-prev.sectors)*utils.SectorSize) / secs),
		Utilization:   util,
		UpdatedAt:     cur.at,
	}, true
}
