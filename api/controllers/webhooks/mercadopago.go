package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lucasmartinez/tienda-backend/api/responses"
	"github.com/lucasmartinez/tienda-backend/internal/payments"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type confirmer interface {
	Confirm(ctx context.Context, paymentID string) (*payments.ConfirmResult, error)
}

type guard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// notification is the body MercadoPago posts. Older integrations send the
// same data as topic/id query parameters instead.
type notification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func paymentIDFromRequest(r *http.Request) (string, bool) {
	query := r.URL.Query()
	topic := query.Get("topic")
	if topic == "" {
		topic = query.Get("type")
	}
	if topic != "" && topic != "payment" {
		return "", false
	}
	if id := strings.TrimSpace(query.Get("id")); id != "" {
		return id, true
	}
	if id := strings.TrimSpace(query.Get("data.id")); id != "" {
		return id, true
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return "", false
	}
	var body notification
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", false
	}
	if body.Type != "" && body.Type != "payment" {
		return "", false
	}
	return strings.TrimSpace(body.Data.ID), body.Data.ID != ""
}

// MercadoPago processes payment notifications. The gateway retries on any
// non-2xx, so everything that is not a transient failure answers 200 even
// when the notification turns out to be a no-op.
func MercadoPago(svc confirmer, dedup guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		if dedup == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		paymentID, ok := paymentIDFromRequest(r)
		if !ok || paymentID == "" {
			// not a payment event; acknowledge so the gateway stops retrying
			responses.WriteSuccess(w, nil)
			return
		}

		alreadyProcessed, err := dedup.CheckAndMark(ctx, paymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		result, err := svc.Confirm(ctx, paymentID)
		if err != nil {
			_ = dedup.Delete(ctx, paymentID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment %s processed: %s", paymentID, result.Outcome))
		}
		responses.WriteSuccess(w, result)
	}
}
