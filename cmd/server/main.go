// Package main runs the rate engine HTTP server: the bulk-upload flow and
// the single-record mutation surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"transfer-rates/internal/api"
	"transfer-rates/internal/store"
	"transfer-rates/pkg/platform"
)

func main() {
	_ = godotenv.Load()
	platform.InitLogger()

	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	port := platform.GetEnv("PORT", "8080")
	server := api.NewServer(st)

	log.Info().
		Str("port", port).
		Str("backend", platform.GetEnv("STORE_BACKEND", "memory")).
		Msg("starting rates server")
	if err := http.ListenAndServe(":"+port, server.Routes()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	backend := strings.ToLower(platform.GetEnv("STORE_BACKEND", "memory"))
	switch backend {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		return store.OpenPostgres(ctx, platform.GetEnv("POSTGRES_DSN",
			"postgres://localhost:5432/transfer_rates?sslmode=disable"))
	case "clickhouse":
		return store.OpenClickHouse(ctx, &store.ClickHouseConfig{
			Host:     platform.GetEnv("CLICKHOUSE_HOST", "localhost"),
			Port:     platform.GetEnvInt("CLICKHOUSE_PORT", 9000),
			Database: platform.GetEnv("CLICKHOUSE_DATABASE", "transfer_rates"),
			Username: platform.GetEnv("CLICKHOUSE_USER", "default"),
			Password: platform.GetEnv("CLICKHOUSE_PASSWORD", ""),
			Debug:    platform.GetEnvBool("CLICKHOUSE_DEBUG", false),
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
