package api

import (
	"github.com/halcyon-labs/persona-proxy/internal/gateway"

	"github.com/gofiber/fiber/v2"
)

// ProvidersHandler reports the configured providers and whether each one
// currently holds credentials.
type ProvidersHandler struct {
	gw *gateway.Gateway
}

// NewProvidersHandler creates a new providers handler
func NewProvidersHandler(gw *gateway.Gateway) *ProvidersHandler {
	return &ProvidersHandler{gw: gw}
}

// List returns the provider availability mapping
func (h *ProvidersHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"providers": h.gw.AvailableProviders(),
	})
}
