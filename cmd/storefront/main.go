package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Noa-ST/asmprn/internal/auth"
	"github.com/Noa-ST/asmprn/internal/cart"
	"github.com/Noa-ST/asmprn/internal/catalog"
	"github.com/Noa-ST/asmprn/internal/messaging"
	"github.com/Noa-ST/asmprn/internal/orders"
	"github.com/Noa-ST/asmprn/internal/telemetry"
)

const defaultShippingFee = 15000 // flat VND fee for any non-empty cart

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	internalToken := os.Getenv("INTERNAL_TOKEN")
	if internalToken == "" {
		logger.Error("INTERNAL_TOKEN environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var cartCache cart.Cache
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisClient.Close() }()
		cartCache = cart.NewRedisCache(redisClient)
	}

	var producer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","), "order.placed")
		defer func() { _ = producer.Close() }()
	}

	shippingFee := int64(defaultShippingFee)
	if raw := os.Getenv("SHIPPING_FEE"); raw != "" {
		fee, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || fee < 0 {
			logger.Error("invalid SHIPPING_FEE", "value", raw)
			os.Exit(1)
		}
		shippingFee = fee
	}

	tokenIssuer := auth.NewTokenIssuer(jwtSecret, time.Hour)
	userRepo := auth.NewUserRepository(db)
	authHandler := auth.NewHandler(userRepo, tokenIssuer, logger)

	productRepo := catalog.NewProductRepository(db)
	catalogHandler := catalog.NewHandler(productRepo, logger)

	cartLocks := cart.NewKeyedMutex()
	cartRepo := cart.NewPostgresRepository(db)
	cartService := cart.NewService(cartRepo, productRepo, cartCache, cartLocks, logger)
	cartHandler := cart.NewHandler(cartService, logger)

	orderRepo := orders.NewOrderRepository(db)
	orderService := orders.NewService(orderRepo, cartLocks, cartService, producer, shippingFee, logger)
	orderHandler := orders.NewHandler(orderService, logger)

	requireAuth := auth.Middleware(tokenIssuer)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)

		r.Get("/products", catalogHandler.HandleList)
		r.Get("/products/{id}", catalogHandler.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/products", catalogHandler.HandleCreate)
			r.Put("/products/{id}", catalogHandler.HandleUpdate)
			r.Delete("/products/{id}", catalogHandler.HandleDelete)

			r.Get("/cart", cartHandler.HandleGet)
			r.Post("/cart", cartHandler.HandleAddItem)
			r.Put("/cart/{lineId}", cartHandler.HandleSetQuantity)
			r.Delete("/cart/{lineId}", cartHandler.HandleRemoveItem)

			r.Post("/orders", orderHandler.HandleCheckout)
			r.Get("/orders", orderHandler.HandleList)
			r.Get("/orders/{id}", orderHandler.HandleGet)
		})
	})

	// Fulfillment callbacks. Gated on the shared secret, never on user
	// bearer tokens.
	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.InternalOnly(internalToken))
		r.Patch("/orders/{id}/status", orderHandler.HandleUpdateStatus)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(r, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
				return req.Method + " " + req.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
