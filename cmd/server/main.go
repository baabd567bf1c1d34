package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/abrahamahn/abe-stack-sub003/internal/catalog"
	dbi "github.com/abrahamahn/abe-stack-sub003/internal/database/interfaces"
	"github.com/abrahamahn/abe-stack-sub003/internal/database/observability"
	"github.com/abrahamahn/abe-stack-sub003/internal/database/postgres"
	"github.com/abrahamahn/abe-stack-sub003/internal/middleware/requestid"
	applog "github.com/abrahamahn/abe-stack-sub003/internal/pkg/log"
	platformconfig "github.com/abrahamahn/abe-stack-sub003/internal/platform/config"
	"github.com/abrahamahn/abe-stack-sub003/search"
	"github.com/abrahamahn/abe-stack-sub003/search/handlers"
	"github.com/abrahamahn/abe-stack-sub003/search/services"
)

const healthProbeInterval = 15 * time.Second

func main() {
	cfg, err := platformconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load platform config: %v", err)
	}
	applog.SetDebug(cfg.Server.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.Search.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load search catalog: %v", err)
	}

	pgConfig := &dbi.PostgreSQLConfig{
		Host:               cfg.Database.Postgres.Host,
		Port:               cfg.Database.Postgres.Port,
		Username:           cfg.Database.Postgres.Username,
		Password:           cfg.Database.Postgres.Password,
		Database:           cfg.Database.Postgres.Database,
		DSN:                cfg.Database.Postgres.DSN,
		SSLMode:            cfg.Database.Postgres.SSLMode,
		MaxOpenConnections: cfg.Database.Postgres.MaxOpenConns,
		MaxIdleConnections: cfg.Database.Postgres.MaxIdleConns,
		MaxLifetime:        int(cfg.Database.Postgres.ConnMaxLifetime.Seconds()),
		ConnectTimeout:     cfg.Database.Postgres.ConnectTimeout,
		QueryTimeout:       cfg.Database.Postgres.QueryTimeout,
	}
	pgClient, err := postgres.NewClient(ctx, pgConfig, pgConfig.Database)
	if err != nil {
		log.Fatalf("Failed to create postgres client: %v", err)
	}
	defer pgClient.Close()

	metrics := observability.GetGlobalMetrics()
	metrics.StartPeriodicCleanup(ctx, time.Hour, 24*time.Hour)

	searchers, err := services.NewProviders(cat, cfg.Search, pgClient, metrics)
	if err != nil {
		log.Fatalf("Failed to create search providers: %v", err)
	}
	searchService := services.NewService(searchers)
	defer searchService.Close()
	log.Printf("Search resources registered: %v", searchService.Resources())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			applog.ErrorWithContext(c.UserContext(), "[ErrorHandler] Path: %s, Error: %v, Code: %d", c.Path(), err, code)

			// If response already set by handler, don't override it
			if len(c.Response().Body()) > 0 {
				return nil
			}
			return c.Status(code).JSON(fiber.Map{"code": "INTERNAL_ERROR", "message": err.Error()})
		},
	})
	app.Use(requestid.New())

	search.RegisterRoutes(app, &search.Handlers{
		SearchHandler: handlers.NewSearchHandler(searchService, metrics),
	}, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Starting Search API Server on %s", addr)
		return app.Listen(addr)
	})

	if cfg.GRPC.HealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.HealthPort))
		if err != nil {
			log.Fatalf("Failed to listen on gRPC port %d: %v", cfg.GRPC.HealthPort, err)
		}
		grpcServer := grpc.NewServer()
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		g.Go(func() error {
			log.Printf("gRPC health server listening on port %d", cfg.GRPC.HealthPort)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			probeHealth(gctx, searchService, healthServer)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down search API server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}

// probeHealth mirrors resource health into the gRPC health service. Each
// resource is reported under its own service name; the empty name is the
// aggregate.
func probeHealth(ctx context.Context, svc services.Service, hs *health.Server) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		overall := healthpb.HealthCheckResponse_SERVING
		for resource, ok := range svc.Health(ctx) {
			status := healthpb.HealthCheckResponse_SERVING
			if !ok {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				overall = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus("search."+resource, status)
		}
		hs.SetServingStatus("", overall)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
