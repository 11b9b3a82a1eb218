package mercadopago

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmartinez/tienda-backend/pkg/config"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "mp-test", Output: io.Discard})
	client, err := NewClient(context.Background(), config.MercadoPagoConfig{
		AccessToken: "test-token",
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		BackURL:     "https://shop.example/checkout",
		NotifyURL:   "https://shop.example/webhooks/mercadopago",
		StoreName:   "Tienda Test",
	}, logg)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAccessToken(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "mp-test", Output: io.Discard})
	_, err := NewClient(context.Background(), config.MercadoPagoConfig{}, logg)
	require.Error(t, err)
}

func TestGetPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/42", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                 42,
			"status":             "approved",
			"external_reference": "7",
			"transaction_amount": 48.98,
			"payer": map[string]any{
				"first_name": "Maria",
				"last_name":  "Gomez",
				"email":      "maria@example.com",
				"identification": map[string]any{
					"type":   "DNI",
					"number": "30111222",
				},
			},
			"transaction_details": map[string]any{"total_paid_amount": 48.98},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	payment, err := client.GetPayment(context.Background(), "42")
	require.NoError(t, err)

	assert.True(t, payment.Approved())
	assert.Equal(t, "7", payment.ExternalReference)
	assert.Equal(t, "Maria Gomez", payment.Payer.FullName())
	assert.True(t, payment.TransactionDetails.TotalPaidAmount.Equal(decimal.RequireFromString("48.98")))
}

func TestGetPaymentMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "payment not found"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetPayment(context.Background(), "999")
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCreatePreference(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":                 "pref-abc",
			"init_point":         "https://mp.example/init/pref-abc",
			"external_reference": "7",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	preference, err := client.CreatePreference(context.Background(), PreferenceCreateParams{
		Items: []PreferenceItem{{
			ID:         "1",
			Title:      "yerba",
			Quantity:   2,
			UnitPrice:  decimal.RequireFromString("17.99"),
			CurrencyID: "ARS",
		}},
		Payer:              PreferencePayer{Name: "Lucas", Email: "lucas@example.com"},
		ExternalReference:  "7",
		ExpirationDateFrom: time.Now(),
		ExpirationDateTo:   time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "pref-abc", preference.ID)
	assert.Equal(t, "https://mp.example/init/pref-abc", preference.InitPoint)

	assert.Equal(t, true, captured["binary_mode"])
	assert.Equal(t, "7", captured["external_reference"])
	assert.Equal(t, "approved", captured["auto_return"])
	assert.Equal(t, "https://shop.example/webhooks/mercadopago", captured["notification_url"])
}

func TestPayerFullNameSkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "Maria", Payer{FirstName: " Maria "}.FullName())
	assert.Equal(t, "Gomez", Payer{LastName: "Gomez"}.FullName())
	assert.Equal(t, "", Payer{}.FullName())
}

func TestRedactHidesSensitiveFields(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "[REDACTED]", c.redact("access_token", "abc"))
	assert.Equal(t, "[REDACTED]", c.redact("payer_email", "x@y.z"))
	assert.Equal(t, "ok", c.redact("status", "ok"))
}
