package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Noa-ST/asmprn/internal/auth"
	"github.com/Noa-ST/asmprn/internal/domain"
)

// Handler plays the fulfillment collaborator: it consumes order placed
// events and advances the order status. The storefront core itself never
// moves an order past pending.
type Handler struct {
	storefrontURL string
	internalToken string
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewHandler(storefrontURL, internalToken string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		storefrontURL: storefrontURL,
		internalToken: internalToken,
		httpClient:    client,
		logger:        logger,
	}
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "user_id", event.UserID)

	if err := h.updateOrderStatus(ctx, event.OrderID, domain.OrderStatusProcessing); err != nil {
		h.logger.Error("failed to advance order", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("advance order to processing: %w", err)
	}

	h.notify(event)

	h.logger.Info("order moved to processing", "order_id", event.OrderID)
	return nil
}

func (h *Handler) updateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/orders/%s/status", h.storefrontURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.InternalTokenHeader, h.internalToken)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// 409 means the order already moved past pending, e.g. a redelivered
	// event. Treat it as done.
	if resp.StatusCode == http.StatusConflict {
		h.logger.Info("order already advanced", "order_id", orderID)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storefront returned status %d", resp.StatusCode)
	}

	return nil
}

func (h *Handler) notify(event domain.OrderPlacedEvent) {
	h.logger.Info("order confirmation sent",
		"order_id", event.OrderID,
		"user_id", event.UserID,
		"lines", len(event.Lines),
		"total", event.TotalAmount,
	)
}
