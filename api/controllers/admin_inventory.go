package controllers

import (
	"net/http"

	"github.com/lucasmartinez/tienda-backend/api/responses"
	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

// AdminResetReservations zeroes every product's reserved counter, folding the
// units back into sellable stock. Maintenance hatch for when reservations and
// orders drift apart.
func AdminResetReservations(ledger inventory.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		affected, err := ledger.ResetAllReserved(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		logg.Info(logg.WithField(r.Context(), "products_reset", affected), "reserved stock reset")
		responses.WriteSuccess(w, map[string]int64{"products_reset": affected})
	}
}
