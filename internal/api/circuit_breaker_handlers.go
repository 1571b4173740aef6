package api

import (
	"net/http"
)

// getCircuitBreakerStatusHandler returns the state of the Kafka publish
// breaker and of the breaker shedding catalog traffic
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"api": s.gracefulDegradation.GetMetrics(),
	}
	if s.publishBreaker != nil {
		data["publish"] = s.publishBreaker.GetMetrics()
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data})
}

// resetCircuitBreakerHandler closes the breakers. ?name=publish or ?name=api
// resets only one of them.
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	switch name {
	case "", "api", "publish":
	default:
		s.respondWithError(w, http.StatusBadRequest, "name must be api or publish")
		return
	}

	if name != "publish" {
		s.gracefulDegradation.Reset()
	}
	if name != "api" && s.publishBreaker != nil {
		s.publishBreaker.Reset()
	}

	s.logger.Info("Circuit breaker reset", "name", name)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}
