// Package app wires the orderdesk API server.
package app

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/auth"
	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/domain/report"
	"github.com/xenking/orderdesk/internal/handler"
	"github.com/xenking/orderdesk/internal/notify"
	"github.com/xenking/orderdesk/internal/storage/postgres"
	"github.com/xenking/orderdesk/pkg/health"
	"github.com/xenking/orderdesk/pkg/httpmiddleware"
)

// Telemetry provides the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	orderCfg, err := cfg.Pricing.OrderConfig()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Liveness, "gc_pause", health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Notifications: websocket hub always, AMQP when configured.
	hub := notify.NewHub(originChecker(cfg.CORS.Origins))
	sinks := []notify.Sink{hub}
	if cfg.Notify.AMQPURL != "" {
		amqpSink, err := notify.DialAMQP(notify.AMQPConfig{
			URL:      cfg.Notify.AMQPURL,
			Exchange: cfg.Notify.Exchange,
		}, lg.Named("amqp"))
		if err != nil {
			return errors.Wrap(err, "dial amqp")
		}
		defer func() { _ = amqpSink.Close() }()
		sinks = append(sinks, amqpSink)
	}
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		BufferSize:  cfg.Notify.BufferSize,
		SendTimeout: cfg.Notify.SendTimeout,
	}, lg.Named("notify"), m.MeterProvider(), sinks...)
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	// The dispatcher outlives ctx so events published while draining
	// requests are still delivered.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx)

	// Repositories.
	storeRepo := postgres.NewStoreRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	numbers, err := order.NewNumberGenerator(cfg.OrderNumber.NodeID)
	if err != nil {
		return errors.Wrap(err, "order numbers")
	}
	catalogSvc := catalog.NewService(catalogRepo, dispatcher)
	orderSvc, err := order.NewService(order.Deps{
		Stores:         storeRepo,
		Customers:      customer.NewRegistry(customerRepo),
		Catalog:        catalogSvc,
		Coupons:        coupon.NewEvaluator(couponRepo),
		Orders:         orderRepo,
		Tx:             postgres.NewTxManager(pool),
		Numbers:        numbers,
		Events:         dispatcher,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, orderCfg)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(handler.Deps{
		Orders:  orderSvc,
		Catalog: catalogSvc,
		Coupons: coupon.NewManager(couponRepo),
		Reports: report.NewService(reportRepo),
		Stores:  storeRepo,
		Auth:    auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	}, handler.Config{DefaultStore: cfg.DefaultStore})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	mux.Handle("GET /ws", hub)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, "api_key", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				RPS:     cfg.RateLimit.RPS,
				Burst:   cfg.RateLimit.Burst,
				IdleTTL: cfg.RateLimit.IdleTTL,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("orderdesk-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		stopDispatch()
		dispatcher.Wait()
		hub.Close()
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// originChecker restricts websocket upgrades to the CORS origins. A wildcard
// or empty list accepts any origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(origins, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}
