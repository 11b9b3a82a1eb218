package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/internal/payments"
)

type fakeConfirmer struct {
	calls []string
	fail  bool
}

func (f *fakeConfirmer) Confirm(_ context.Context, paymentID string) (*payments.ConfirmResult, error) {
	f.calls = append(f.calls, paymentID)
	if f.fail {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway down")
	}
	return &payments.ConfirmResult{Outcome: payments.OutcomeConfirmed, OrderID: 7}, nil
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (f *fakeGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeGuard) Delete(_ context.Context, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	delete(f.seen, eventID)
	return nil
}

func TestMercadoPagoProcessesJSONNotification(t *testing.T) {
	svc := &fakeConfirmer{}
	handler := MercadoPago(svc, newFakeGuard(), nil)

	body := `{"type":"payment","data":{"id":"123456"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "123456" {
		t.Fatalf("expected one confirm call for 123456, got %v", svc.calls)
	}
}

func TestMercadoPagoProcessesQueryNotification(t *testing.T) {
	svc := &fakeConfirmer{}
	handler := MercadoPago(svc, newFakeGuard(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago?topic=payment&id=987", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "987" {
		t.Fatalf("expected one confirm call for 987, got %v", svc.calls)
	}
}

func TestMercadoPagoAcknowledgesOtherTopics(t *testing.T) {
	svc := &fakeConfirmer{}
	handler := MercadoPago(svc, newFakeGuard(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago?topic=merchant_order&id=1", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatal("non-payment topics must not reach the service")
	}
}

func TestMercadoPagoDeduplicatesRedelivery(t *testing.T) {
	svc := &fakeConfirmer{}
	dedup := newFakeGuard()
	handler := MercadoPago(svc, dedup, nil)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago?topic=payment&id=555", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, resp.Code)
		}
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected one confirm call, got %d", len(svc.calls))
	}
}

func TestMercadoPagoUnmarksOnFailure(t *testing.T) {
	svc := &fakeConfirmer{fail: true}
	dedup := newFakeGuard()
	handler := MercadoPago(svc, dedup, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago?topic=payment&id=666", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code == http.StatusOK {
		t.Fatal("expected failure status")
	}
	if len(dedup.deleted) != 1 || dedup.deleted[0] != "666" {
		t.Fatalf("expected the mark to be released, got %v", dedup.deleted)
	}
}
