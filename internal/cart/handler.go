package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Noa-ST/asmprn/internal/auth"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	cart, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if req.Quantity < 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	cart, err := h.service.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to add cart item", "error", err, "user_id", userID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "user_id", userID, "product_id", req.ProductID)
	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	lineID := chi.URLParam(r, "lineId")

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, err := h.service.SetQuantity(r.Context(), userID, lineID, req.Quantity)
	if err != nil {
		if errors.Is(err, ErrLineNotFound) {
			h.writeError(w, http.StatusNotFound, "cart line not found")
			return
		}
		h.logger.Error("failed to set cart quantity", "error", err, "user_id", userID, "line_id", lineID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	lineID := chi.URLParam(r, "lineId")

	if err := h.service.RemoveItem(r.Context(), userID, lineID); err != nil {
		h.logger.Error("failed to remove cart item", "error", err, "user_id", userID, "line_id", lineID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item removed", "user_id", userID, "line_id", lineID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
