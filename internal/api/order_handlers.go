package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vaidashi/flower-shop-api/internal/service"
	apperrors "github.com/vaidashi/flower-shop-api/pkg/errors"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyScope  = "orders"
	maxIdempotencyKey = 255
)

// orderCreatedResponse is the body of a successful checkout
type orderCreatedResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Message     string `json:"message"`
}

// idempotentRecord is what a completed keyed request leaves behind. The
// fingerprint ties the key to the order it created.
type idempotentRecord struct {
	Fingerprint string               `json:"fingerprint"`
	Response    orderCreatedResponse `json:"response"`
}

// fingerprint hashes the decoded input, so formatting differences in the
// body do not count as a different request
func fingerprint(input service.CreateOrderInput) string {
	raw, _ := json.Marshal(input)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// createOrderHandler places an order. With an Idempotency-Key header a
// repeated request returns the first response instead of a second order.
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))

	if len(key) > maxIdempotencyKey {
		s.respondWithError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}

	var input service.CreateOrderInput

	if err := decodeJSON(r, w, &input); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if key == "" || s.idempotency == nil {
		s.createOrder(ctx, w, r, input)
		return
	}

	sum := fingerprint(input)

	if stored, ok, err := s.idempotency.Recall(ctx, idempotencyScope, key); err != nil {
		s.logger.Warn("Failed to recall idempotent response", "error", err, "key", key)
	} else if ok {
		var record idempotentRecord
		if err := json.Unmarshal([]byte(stored), &record); err != nil {
			s.logger.Warn("Discarding unreadable idempotent response", "key", key)
		} else if record.Fingerprint != sum {
			s.respondWithError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different order")
			return
		} else {
			w.Header().Set("Idempotent-Replayed", "true")
			s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: record.Response})
			return
		}
	}

	locked, err := s.idempotency.TryLock(ctx, idempotencyScope, key)

	if err != nil {
		s.respondWithAppError(w, r, apperrors.NewServiceUnavailableError("Idempotency store unavailable").WithCause(err))
		return
	}

	if !locked {
		s.respondWithError(w, http.StatusConflict, "A request with this Idempotency-Key is already being processed")
		return
	}

	resp, ok := s.createOrder(ctx, w, r, input)

	if !ok {
		// let the client retry with the same key
		if err := s.idempotency.Release(context.WithoutCancel(ctx), idempotencyScope, key); err != nil {
			s.logger.Warn("Failed to release idempotency key", "error", err, "key", key)
		}
		return
	}

	encoded, _ := json.Marshal(idempotentRecord{Fingerprint: sum, Response: resp})

	if err := s.idempotency.Remember(context.WithoutCancel(ctx), idempotencyScope, key, string(encoded)); err != nil {
		s.logger.Warn("Failed to remember idempotent response", "error", err, "key", key, "orderID", resp.OrderID)
	}
}

func (s *Server) createOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, input service.CreateOrderInput) (orderCreatedResponse, bool) {
	result, err := s.orders.CreateOrder(ctx, input)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return orderCreatedResponse{}, false
	}

	resp := orderCreatedResponse{
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		Message:     "Order created successfully",
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: resp})
	return resp, true
}

// getOrdersHandler lists orders, newest first
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	page, err := s.orders.ListOrders(r.Context(), status, queryInt(r, "page"), queryInt(r, "limit"))

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: page})
}

// getOrderByIDHandler returns an order with its items
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	order, err := s.orders.GetOrder(r.Context(), id)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// updateOrderStatusHandler moves an order to a new status
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	var req statusUpdateRequest

	if err := decodeJSON(r, w, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	order, err := s.orders.UpdateOrderStatus(r.Context(), id, req.Status)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// deleteOrderHandler removes an order and its items
func (s *Server) deleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if err := s.orders.DeleteOrder(r.Context(), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]interface{}{"message": "Order deleted successfully", "id": id},
	})
}
