package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/lucasmartinez/tienda-backend/api/routes"
	cartsvc "github.com/lucasmartinez/tienda-backend/internal/cart"
	checkoutsvc "github.com/lucasmartinez/tienda-backend/internal/checkout"
	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	ordersvc "github.com/lucasmartinez/tienda-backend/internal/orders"
	"github.com/lucasmartinez/tienda-backend/internal/payments"
	"github.com/lucasmartinez/tienda-backend/internal/sessioncart"
	"github.com/lucasmartinez/tienda-backend/pkg/config"
	"github.com/lucasmartinez/tienda-backend/pkg/db"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
	"github.com/lucasmartinez/tienda-backend/pkg/mercadopago"
	"github.com/lucasmartinez/tienda-backend/pkg/migrate"
	"github.com/lucasmartinez/tienda-backend/pkg/redis"
)

const webhookDedupTTL = 7 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mpClient, err := mercadopago.NewClient(context.Background(), cfg.MercadoPago, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mercadopago client", err)
		os.Exit(1)
	}

	sessions, err := sessioncart.NewStore(redisClient, cfg.Session.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create session cart store", err)
		os.Exit(1)
	}

	ledger, err := inventory.NewLedger(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory ledger", err)
		os.Exit(1)
	}

	cartRepo := cartsvc.NewRepository(dbClient.DB())
	ordersRepo := ordersvc.NewRepository(dbClient.DB())

	reconciler, err := cartsvc.NewReconciler(cartRepo, ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart reconciler", err)
		os.Exit(1)
	}

	cartService, err := cartsvc.NewService(sessions, reconciler, cartRepo, ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	coupon, err := decimal.NewFromString(cfg.Checkout.CouponDiscount)
	if err != nil {
		logg.Error(context.Background(), "invalid coupon discount amount", err)
		os.Exit(1)
	}

	methods := checkoutsvc.NewMethodRegistry(dbClient.DB())
	checkoutService, err := checkoutsvc.NewService(dbClient, cartRepo, ordersRepo, methods, ledger, checkoutsvc.FixedDiscount{Amount: coupon}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersService, err := ordersvc.NewService(dbClient, ordersRepo, ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(dbClient, ordersRepo, cartRepo, ledger, mpClient, sessions, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewIdempotencyGuard(redisClient, webhookDedupTTL, "mercadopago")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:           cfg,
			Logger:           logg,
			DBPinger:         dbClient,
			CachePinger:      redisClient,
			IdempotencyStore: redisClient,
			SessionStore:     sessions,
			CartService:      cartService,
			CheckoutService:  checkoutService,
			MethodRegistry:   methods,
			OrdersService:    ordersService,
			PaymentsService:  paymentsService,
			WebhookGuard:     webhookGuard,
			Ledger:           ledger,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down")
}
