package middleware

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/halcyon-labs/persona-proxy/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware authenticates inbound requests with either a static API key
// or an HMAC-signed JWT, both carried as a bearer token.
type AuthMiddleware struct {
	config models.AuthConfig
	keys   []string
}

// NewAuthMiddleware creates the middleware from config. API keys use the
// same delimited format as provider credentials.
func NewAuthMiddleware(config models.AuthConfig) *AuthMiddleware {
	var keys []string
	for key := range strings.SplitSeq(config.APIKeys, ",") {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	if len(config.SkipPaths) == 0 {
		config.SkipPaths = []string{"/health"}
	}
	return &AuthMiddleware{config: config, keys: keys}
}

// Authenticate returns the fiber handler enforcing auth on non-skipped paths
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled {
			return c.Next()
		}

		if m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		token := m.extractToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if m.matchAPIKey(token) {
			c.Locals("auth_type", "api_key")
			return c.Next()
		}

		if m.config.JWTSecret != "" {
			if err := m.validateJWT(c, token); err == nil {
				c.Locals("auth_type", "jwt")
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}
}

func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	if header := c.Get("Authorization"); header != "" {
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return strings.TrimSpace(header)
	}
	return strings.TrimSpace(c.Get("X-API-Key"))
}

// matchAPIKey compares the token against every configured key in constant
// time so timing does not reveal which key prefix matched.
func (m *AuthMiddleware) matchAPIKey(token string) bool {
	matched := false
	for _, key := range m.keys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			matched = true
		}
	}
	return matched
}

func (m *AuthMiddleware) validateJWT(c *fiber.Ctx, token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}

	if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			c.Locals("auth_subject", sub)
		}
	}
	return nil
}

func (m *AuthMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
