package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"imagen-mcp/common"
	"imagen-mcp/internal/genai/imagen"
	"imagen-mcp/internal/store"
	"imagen-mcp/internal/tools"

	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "Imagen MCP Server"
	serverVersion = "1.0.0"
)

func main() {
	config, err := common.LoadConfig()
	if err != nil {
		common.Fatalf("Failed to load config: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Server starting...\n")
	fmt.Fprintf(os.Stderr, "GenAI Provider: %s\n", config.GenAIProvider)
	fmt.Fprintf(os.Stderr, "GenAI Base URL: %s\n", config.GenAIBaseURL)
	fmt.Fprintf(os.Stderr, "GenAI Model: %s\n", config.GenAIModelName)
	fmt.Fprintf(os.Stderr, "API Key: %s\n", common.MaskAPIKey(config.GenAIAPIKey))

	generator, err := newGenerator(config)
	if err != nil {
		common.Fatalf("Failed to create image generator: %v", err)
	}

	imageStore, localStore, err := store.NewStoreFromConfig(config)
	if err != nil {
		common.Fatalf("Failed to create image store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if localStore != nil && config.ImageHTTPAddr != "" {
		go func() {
			if err := store.ServeLocal(ctx, config.ImageHTTPAddr, localStore); err != nil {
				common.Errorf("Image HTTP server on %s stopped: %v", config.ImageHTTPAddr, err)
			}
		}()
	}

	if imageStore == nil {
		common.Infof("Image persistence disabled; images are returned inline only")
	} else {
		common.Infof("Image persistence enabled: %s", config.ImageStore)
	}

	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(tools.Instructions),
	)

	creds := imagen.Credentials{APIKey: config.GenAIAPIKey}
	if err := tools.RegisterImagenTools(s, generator, creds, imageStore); err != nil {
		common.Fatalf("Failed to register image tools: %v", err)
	}

	if err := server.ServeStdio(s); err != nil {
		common.Fatalf("Server error: %v", err)
	}
}

func newGenerator(config *common.Config) (imagen.Generator, error) {
	switch config.GenAIProvider {
	case "sdk":
		return imagen.NewSDKGeneratorFromConfig(config)
	default:
		return imagen.NewClientFromConfig(config)
	}
}
