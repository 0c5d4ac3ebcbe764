// Package main runs the fundraising round service: round lifecycle API,
// Prometheus metrics and a websocket feed of audit events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"token-raise-service/internal/custody"
	"token-raise-service/internal/identity"
	"token-raise-service/internal/kyc"
	"token-raise-service/internal/observability"
	"token-raise-service/internal/round"
	"token-raise-service/internal/storage"
	chstore "token-raise-service/internal/storage/clickhouse"
	"token-raise-service/internal/storage/memory"
	"token-raise-service/internal/storage/migrations"
	pgstore "token-raise-service/internal/storage/postgres"
	"token-raise-service/internal/stream"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	httpAddr := flag.String("http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	kycAll := flag.Bool("kyc-allow-all", false, "Treat every principal as KYC-attested")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// The admin capability is shared out of band with roundctl. Minting a
	// fresh one per process keeps a misconfigured deployment locked down.
	adminCap, err := resolveAdminCap()
	if err != nil {
		logger.Fatalf("Failed to resolve admin capability: %v", err)
	}
	if os.Getenv("ADMIN_CAP") == "" {
		logger.Printf("ADMIN_CAP not set; minted ephemeral capability %s", adminCap.Hex())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	var oracle kyc.Oracle = kyc.NewStaticOracle()
	if *kycAll {
		oracle = kyc.AllowAll{}
	}

	hub := stream.NewHub(log.New(os.Stdout, "[stream] ", log.LstdFlags))

	svc := round.New(round.Options{
		Rounds:    stores.rounds,
		Orders:    stores.orders,
		Audit:     stores.audit,
		Vault:     custody.NewVault(),
		KYC:       oracle,
		Clock:     round.WallClock{},
		AdminCap:  adminCap,
		Metrics:   observability.NewMetrics(""),
		Publisher: hub,
		Logger:    logger,
	})

	api := &apiServer{
		svc:    svc,
		hub:    hub,
		oracle: oracle,
		logger: logger,
	}

	srv := &http.Server{
		Addr:         *httpAddr,
		Handler:      api.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("Listening on %s", *httpAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// roundStores holds the storage implementations the service needs.
type roundStores struct {
	rounds storage.RoundStore
	orders storage.OrderStore
	audit  storage.AuditEventStore
}

// createStores creates all required stores and applies migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*roundStores, func(), error) {
	if useMemory {
		stores := &roundStores{
			rounds: memory.NewRoundStore(),
			orders: memory.NewOrderStore(),
			audit:  memory.NewAuditEventStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL: rounds and orders
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	// ClickHouse: audit trail
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	stores := &roundStores{
		rounds: pgstore.NewRoundStore(pool),
		orders: pgstore.NewOrderStore(pool),
		audit:  chstore.NewAuditEventStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// resolveAdminCap reads ADMIN_CAP (hex) or mints a fresh capability.
func resolveAdminCap() (identity.AdminCap, error) {
	if hexCap := os.Getenv("ADMIN_CAP"); hexCap != "" {
		return identity.AdminCapFromHex(hexCap)
	}
	return identity.NewAdminCap()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
