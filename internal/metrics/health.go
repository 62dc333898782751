package metrics

import (
	"encoding/json"
	"net/http"
)

// HealthHandler answers 200 when check passes and 503 with the error otherwise
func HealthHandler(check func() error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]string{"status": "ok"}
		code := http.StatusOK
		if check != nil {
			if err := check(); err != nil {
				body = map[string]string{"status": "unhealthy", "error": err.Error()}
				code = http.StatusServiceUnavailable
			}
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
}
