package health

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler serves the full report. Degraded still answers 200.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := c.Check()
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, resp)
	}
}

// ReadinessHandler serves readiness; anything short of healthy is 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeBinary(w, c.CheckReadiness())
	}
}

// LivenessHandler serves liveness; anything short of healthy is 503.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeBinary(w, c.CheckLiveness())
	}
}

func writeBinary(w http.ResponseWriter, resp Response) {
	code := http.StatusOK
	if resp.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeResponse(w, code, resp)
}

func writeResponse(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
