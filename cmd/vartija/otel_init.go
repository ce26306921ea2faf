package main

import (
	"context"
	"log"
	"os"

	"github.com/yairfalse/vartija/telemetry"
)

// initTelemetry initializes OTEL for Vartija
// Can be disabled with VARTIJA_TELEMETRY_DISABLED=true
func initTelemetry(ctx context.Context) func() {
	if os.Getenv("VARTIJA_TELEMETRY_DISABLED") == "true" {
		return func() {}
	}

	cfg := telemetry.Config{
		ServiceName:    "vartija",
		ServiceVersion: version,
		Environment:    os.Getenv("VARTIJA_ENVIRONMENT"),
		OTELEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       true, // For local development
	}

	shutdown, err := telemetry.InitOTEL(ctx, cfg)
	if err != nil {
		// Don't fail if OTEL init fails - just warn
		log.Printf("telemetry initialization failed: %v", err)
		return func() {}
	}

	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("error shutting down telemetry: %v", err)
		}
	}
}

// Environment variables for configuration:
// - OTEL_EXPORTER_OTLP_ENDPOINT: Where to send telemetry (default: localhost:4317)
// - VARTIJA_TELEMETRY_DISABLED: Set to "true" to disable telemetry
// - VARTIJA_ENVIRONMENT: Environment name (development, staging, production)
