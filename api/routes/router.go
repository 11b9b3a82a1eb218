package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lucasmartinez/tienda-backend/api/controllers"
	webhookcontrollers "github.com/lucasmartinez/tienda-backend/api/controllers/webhooks"
	"github.com/lucasmartinez/tienda-backend/api/middleware"
	cartsvc "github.com/lucasmartinez/tienda-backend/internal/cart"
	checkoutsvc "github.com/lucasmartinez/tienda-backend/internal/checkout"
	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	ordersvc "github.com/lucasmartinez/tienda-backend/internal/orders"
	"github.com/lucasmartinez/tienda-backend/internal/payments"
	"github.com/lucasmartinez/tienda-backend/internal/sessioncart"
	"github.com/lucasmartinez/tienda-backend/pkg/config"
	"github.com/lucasmartinez/tienda-backend/pkg/db"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
	"github.com/lucasmartinez/tienda-backend/pkg/redis"
)

// RouterParams bundle everything the HTTP surface needs.
type RouterParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DBPinger         db.Pinger
	CachePinger      redis.Pinger
	IdempotencyStore middleware.IdempotencyStore
	SessionStore     *sessioncart.Store
	CartService      *cartsvc.Service
	CheckoutService  checkoutsvc.Service
	MethodRegistry   checkoutsvc.MethodRegistry
	OrdersService    ordersvc.Service
	PaymentsService  payments.Service
	WebhookGuard     *payments.IdempotencyGuard
	Ledger           inventory.Ledger
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(p.DBPinger, p.CachePinger, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mercadopago", webhookcontrollers.MercadoPago(p.PaymentsService, p.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// browsing surface: anonymous shoppers welcome, carts ride the
		// session cookie
		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, logg))
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartView(p.CartService, logg))
				r.Post("/add", controllers.CartAdd(p.CartService, logg))
				r.Post("/subtract", controllers.CartSubtract(p.CartService, logg))
				r.Delete("/items/{productID}", controllers.CartRemove(p.CartService, logg))
				r.Delete("/", controllers.CartClear(p.CartService, logg))
			})

			r.Get("/shipment-methods", controllers.ShipmentMethods(p.MethodRegistry, logg))
			r.Get("/payment-methods", controllers.PaymentMethods(p.MethodRegistry, logg))
		})

		// order surface: authenticated only
		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, logg))
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(p.IdempotencyStore, logg))

			r.Post("/checkout", controllers.Checkout(p.CheckoutService, p.PaymentsService, p.SessionStore, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrdersList(p.OrdersService, logg))
				r.Get("/{orderID}", controllers.OrdersGet(p.OrdersService, logg))
				r.Post("/{orderID}/cancel", controllers.OrdersCancel(p.OrdersService, logg))
				r.Post("/{orderID}/preference", controllers.OrdersPreference(p.PaymentsService, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Post("/inventory/reset-reservations", controllers.AdminResetReservations(p.Ledger, logg))
	})

	return r
}
