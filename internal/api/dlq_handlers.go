package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/repository"
)

const (
	defaultDeadLetterPageSize = 10
	maxDeadLetterPageSize     = 100
)

// DeadLetterPage is one page of the dead letter listing
type DeadLetterPage struct {
	Items      []*models.DeadLetterMessage `json:"items"`
	TotalCount int                         `json:"total_count"`
	Page       int                         `json:"page"`
	PageSize   int                         `json:"page_size"`
	Status     string                      `json:"status,omitempty"`
}

// getDeadLettersHandler returns a page of dead letter messages
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page := queryInt(r, "page")
	if page < 1 {
		page = 1
	}

	pageSize := queryInt(r, "pageSize")
	if pageSize < 1 || pageSize > maxDeadLetterPageSize {
		pageSize = defaultDeadLetterPageSize
	}

	var status *models.DeadLetterStatus

	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.DeadLetterStatus(raw)
		switch st {
		case models.DeadLetterStatusPending, models.DeadLetterStatusRetrying,
			models.DeadLetterStatusResolved, models.DeadLetterStatusDiscarded:
			status = &st
		default:
			s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown dead letter status %q", raw))
			return
		}
	}

	messages, err := s.deadLetters.List(ctx, status, pageSize, (page-1)*pageSize)

	if err != nil {
		s.logger.Error("Failed to fetch dead letter messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch dead letter messages")
		return
	}

	total, err := s.deadLetters.Count(ctx, status)

	if err != nil {
		s.logger.Error("Failed to count dead letter messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch dead letter messages")
		return
	}

	response := DeadLetterPage{
		Items:      messages,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}
	if status != nil {
		response.Status = string(*status)
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response})
}

// retryDeadLetterHandler puts a dead letter back in the queue with a fresh
// retry budget. The dead letter processor redelivers it on its next poll.
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	message, err := s.deadLetters.GetMessage(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Dead letter message not found")
			return
		}
		s.logger.Error("Failed to fetch dead letter message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch dead letter message")
		return
	}

	if message.Status == models.DeadLetterStatusResolved {
		s.respondWithError(w, http.StatusConflict, "Resolved messages cannot be retried")
		return
	}

	if err := s.deadLetters.Requeue(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusConflict, "Message was resolved in the meantime")
			return
		}
		s.logger.Error("Failed to requeue dead letter message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to mark message for retry")
		return
	}

	s.logger.Info("Dead letter message requeued", "messageID", id, "eventType", message.EventType)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message": "Dead letter message marked for retry",
			"id":      id,
		},
	})
}

// discardDeadLetterHandler discards a dead letter message
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}

	// the body is optional
	if r.ContentLength != 0 {
		if err := decodeJSON(r, w, &req); err != nil {
			s.respondWithAppError(w, r, err)
			return
		}
	}

	if req.Reason == "" {
		req.Reason = "No reason provided"
	}

	if err := s.deadLetters.MarkAsDiscarded(ctx, id, req.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Dead letter message not found")
			return
		}
		s.logger.Error("Failed to discard message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to discard message")
		return
	}

	s.logger.Info("Dead letter message discarded", "messageID", id, "reason", req.Reason)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message": "Dead letter message discarded",
			"id":      id,
		},
	})
}
