package controllers

import (
	"context"
	"net/http"

	"github.com/lucasmartinez/tienda-backend/api/middleware"
	"github.com/lucasmartinez/tienda-backend/api/responses"
	"github.com/lucasmartinez/tienda-backend/api/validators"
	checkoutsvc "github.com/lucasmartinez/tienda-backend/internal/checkout"
	"github.com/lucasmartinez/tienda-backend/internal/orders"
	"github.com/lucasmartinez/tienda-backend/internal/payments"
	"github.com/lucasmartinez/tienda-backend/internal/sessioncart"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type sessionDropper interface {
	Load(ctx context.Context, sessionID string) (*sessioncart.Cart, error)
	Save(ctx context.Context, sessionID string, cart *sessioncart.Cart) error
}

type checkoutResponse struct {
	Order      orders.OrderDTO         `json:"order"`
	Preference *payments.PreferenceDTO `json:"preference,omitempty"`
}

// Checkout turns the cart into a pending order and, when the gateway is
// wired, hands back the payment preference for the storefront to open.
func Checkout(svc checkoutsvc.Service, gateway payments.Service, sessions sessionDropper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required"))
			return
		}

		var payload checkoutsvc.CheckoutInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), userID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// durable cart is already drained; mirror that into the session blob
		if sessionID := middleware.SessionIDFromContext(r.Context()); sessionID != "" && sessions != nil {
			if session, loadErr := sessions.Load(r.Context(), sessionID); loadErr == nil {
				session.Clear()
				if saveErr := sessions.Save(r.Context(), sessionID, session); saveErr != nil {
					logg.Warn(r.Context(), "clearing session cart after checkout failed")
				}
			}
		}

		resp := checkoutResponse{Order: orders.NewOrderDTO(order)}
		if gateway != nil {
			preference, prefErr := gateway.CreatePreference(r.Context(), order.ID, userID)
			if prefErr != nil {
				// the order stands; the client can retry the payment window
				logg.Error(r.Context(), "creating payment preference failed", prefErr)
			} else {
				resp.Preference = preference
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}
