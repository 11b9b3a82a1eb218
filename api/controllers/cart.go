package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lucasmartinez/tienda-backend/api/middleware"
	"github.com/lucasmartinez/tienda-backend/api/responses"
	"github.com/lucasmartinez/tienda-backend/api/validators"
	cartsvc "github.com/lucasmartinez/tienda-backend/internal/cart"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type cartMutationRequest struct {
	ProductID uint64 `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

func sessionOr401(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session"))
		return "", false
	}
	return sessionID, true
}

// CartView returns the shopper's current cart.
func CartView(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionOr401(w, r, logg)
		if !ok {
			return
		}

		summary, err := svc.View(r.Context(), middleware.UserIDFromContext(r.Context()), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CartAdd adds units of a product to the cart.
func CartAdd(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionOr401(w, r, logg)
		if !ok {
			return
		}

		var payload cartMutationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Add(r.Context(), middleware.UserIDFromContext(r.Context()), sessionID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CartSubtract removes units of a product from the cart.
func CartSubtract(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionOr401(w, r, logg)
		if !ok {
			return
		}

		var payload cartMutationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Subtract(r.Context(), middleware.UserIDFromContext(r.Context()), sessionID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CartRemove drops a product line entirely.
func CartRemove(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionOr401(w, r, logg)
		if !ok {
			return
		}

		productID, err := strconv.ParseUint(chi.URLParam(r, "productID"), 10, 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		summary, err := svc.Remove(r.Context(), middleware.UserIDFromContext(r.Context()), sessionID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CartClear empties the cart.
func CartClear(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionOr401(w, r, logg)
		if !ok {
			return
		}

		summary, err := svc.Clear(r.Context(), middleware.UserIDFromContext(r.Context()), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
