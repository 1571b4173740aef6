package api

import (
	"net/http"
)

// getRateLimitsHandler returns the current rate limit settings and metrics
func (s *Server) getRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"global_metrics":  s.rateLimiter.GetMetrics(),
		"endpoint_limits": s.endpointRateLimiter.GetAllLimits(),
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response})
}

// setEndpointRateLimitHandler sets the bucket for one "METHOD:/route" endpoint
func (s *Server) setEndpointRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint   string  `json:"endpoint"`
		MaxTokens  float64 `json:"max_tokens"`
		RefillRate float64 `json:"refill_rate"`
	}

	if err := decodeJSON(r, w, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if req.Endpoint == "" {
		s.respondWithError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}

	if req.MaxTokens <= 0 || req.RefillRate <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "max_tokens and refill_rate must be greater than zero")
		return
	}

	s.endpointRateLimiter.SetLimit(req.Endpoint, req.MaxTokens, req.RefillRate)
	s.logger.Info("Endpoint rate limit updated", "endpoint", req.Endpoint, "maxTokens", req.MaxTokens, "refillRate", req.RefillRate)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message":     "Rate limit updated successfully",
			"endpoint":    req.Endpoint,
			"max_tokens":  req.MaxTokens,
			"refill_rate": req.RefillRate,
		},
	})
}

// resetRateLimitsHandler refills every bucket
func (s *Server) resetRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	s.rateLimiter.Reset()
	s.endpointRateLimiter.Reset()

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"message": "Rate limits reset successfully"},
	})
}
