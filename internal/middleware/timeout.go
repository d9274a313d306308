package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"token-auth-server/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout bounds each request, including its store round-trips, by cancelling the request
// context after timeout and answering 503 with a JSON body.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "REQUEST_TIMEOUT",
			Message: "request timed out",
		},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
