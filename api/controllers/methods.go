package controllers

import (
	"net/http"

	"github.com/lucasmartinez/tienda-backend/api/responses"
	checkoutsvc "github.com/lucasmartinez/tienda-backend/internal/checkout"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

// ShipmentMethods lists the active delivery options.
func ShipmentMethods(registry checkoutsvc.MethodRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods, err := registry.ListShipmentMethods(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, methods)
	}
}

// PaymentMethods lists the active payment options.
func PaymentMethods(registry checkoutsvc.MethodRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods, err := registry.ListPaymentMethods(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, methods)
	}
}
