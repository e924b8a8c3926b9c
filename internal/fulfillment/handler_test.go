package fulfillment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Noa-ST/asmprn/internal/auth"
	"github.com/Noa-ST/asmprn/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:     "order-1",
		UserID:      "user-1",
		Lines:       []domain.OrderLine{{ProductID: "p1", Name: "Áo thun nam", Quantity: 2, Price: 150000}},
		TotalAmount: 315000,
		PlacedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

func TestHandleAdvancesOrderToProcessing(t *testing.T) {
	var gotPath, gotMethod, gotToken string
	var gotBody map[string]string

	storefront := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotToken = r.Header.Get(auth.InternalTokenHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"order-1","status":"processing"}`))
	}))
	defer storefront.Close()

	handler := NewHandler(storefront.URL, "shared-secret", storefront.Client(), testLogger())

	if err := handler.Handle(context.Background(), eventPayload(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/internal/orders/order-1/status" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("expected PATCH, got %s", gotMethod)
	}
	if gotToken != "shared-secret" {
		t.Errorf("expected internal token header, got %q", gotToken)
	}
	if gotBody["status"] != "processing" {
		t.Errorf("expected status processing, got %s", gotBody["status"])
	}
}

func TestHandleToleratesAlreadyAdvancedOrder(t *testing.T) {
	storefront := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"invalid status transition"}`))
	}))
	defer storefront.Close()

	handler := NewHandler(storefront.URL, "shared-secret", storefront.Client(), testLogger())

	// a redelivered event must not error the consume loop
	if err := handler.Handle(context.Background(), eventPayload(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleFailsOnStorefrontError(t *testing.T) {
	storefront := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer storefront.Close()

	handler := NewHandler(storefront.URL, "shared-secret", storefront.Client(), testLogger())

	if err := handler.Handle(context.Background(), eventPayload(t)); err == nil {
		t.Fatal("expected error when storefront returns 500")
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	handler := NewHandler("http://unused", "shared-secret", http.DefaultClient, testLogger())

	if err := handler.Handle(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
