package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/soltixdb/unistor/internal/config"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/models"
)

// MinAPIKeyLength is the minimum required length for API keys
const MinAPIKeyLength = 32

// ScopeLocal is the fiber.Ctx locals key holding the caller's Scope
const ScopeLocal = "auth_scope"

// Scope is what an authenticated key may do
type Scope string

const (
	// ScopeAdmin may call every endpoint
	ScopeAdmin Scope = "admin"
	// ScopeAgent may read and push node facts and metrics, nothing else
	ScopeAgent Scope = "agent"
)

// ValidateAPIKey checks if an API key meets the security requirements
func ValidateAPIKey(key string) bool {
	if len(key) < MinAPIKeyLength {
		return false
	}
	return strings.TrimSpace(key) != ""
}

type scopedKey struct {
	key   []byte
	scope Scope
}

// APIKeyAuth authenticates X-API-Key or Authorization headers. Agent keys
// are limited to GET requests and PUT under /v1/nodes/.
func APIKeyAuth(logger *logging.Logger, cfg config.AuthConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			c.Locals(ScopeLocal, ScopeAdmin)
			return c.Next()
		}
	}

	keys := loadKeys(logger, cfg.APIKeys, ScopeAdmin)
	keys = append(keys, loadKeys(logger, cfg.AgentKeys, ScopeAgent)...)
	if len(keys) == 0 {
		logger.Error("No valid API keys configured - all provided keys failed validation",
			"total_keys", len(cfg.APIKeys)+len(cfg.AgentKeys),
			"min_required_length", MinAPIKeyLength,
		)
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKey(c)
		if apiKey == "" {
			logger.Warn("API key missing",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
			)
			return unauthorized(c, "API key is required. Provide it via X-API-Key header or Authorization header.")
		}

		scope, ok := lookup(keys, apiKey)
		if !ok {
			logger.Warn("Invalid API key",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
				"api_key_prefix", maskAPIKey(apiKey),
			)
			return unauthorized(c, "Invalid API key.")
		}

		if scope == ScopeAgent && !agentAllowed(c.Method(), c.Path()) {
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    "FORBIDDEN",
					Message: "Agent keys may only read state and report node facts.",
					Path:    c.Path(),
				},
			})
		}

		c.Locals(ScopeLocal, scope)
		return c.Next()
	}
}

func loadKeys(logger *logging.Logger, raw []string, scope Scope) []scopedKey {
	out := make([]scopedKey, 0, len(raw))
	for _, key := range raw {
		if key == "" {
			continue
		}
		if !ValidateAPIKey(key) {
			logger.Warn("API key does not meet security requirements",
				"scope", string(scope),
				"key_length", len(key),
				"min_required", MinAPIKeyLength,
				"key_prefix", maskAPIKey(key),
			)
			continue
		}
		out = append(out, scopedKey{key: []byte(key), scope: scope})
	}
	return out
}

// lookup compares in constant time per key
func lookup(keys []scopedKey, candidate string) (Scope, bool) {
	c := []byte(candidate)
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k.key, c) == 1 {
			return k.scope, true
		}
	}
	return "", false
}

// extractAPIKey accepts X-API-Key, "Authorization: Bearer <key>" and a
// bare Authorization value
func extractAPIKey(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	auth := c.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return auth
}

func agentAllowed(method, path string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead:
		return true
	case fiber.MethodPut:
		return strings.HasPrefix(path, "/v1/nodes/")
	default:
		return false
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}

// maskAPIKey masks API key for logging (show only first 4 chars)
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
