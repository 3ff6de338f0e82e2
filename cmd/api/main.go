package main

import (
	"log"

	"github.com/halcyon-labs/persona-proxy/internal/config"
	"github.com/halcyon-labs/persona-proxy/pkg/proxy"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	// Load configuration from YAML
	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	// Start the server
	log.Println("Starting persona-proxy server...")
	if err := proxy.New(cfg).Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
