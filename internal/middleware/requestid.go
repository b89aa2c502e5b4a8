// Package middleware provides HTTP middleware for RepairDesk.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/RepairDesk/internal/logger"
)

// HeaderRequestID is the header carrying the request correlation ID. The
// same header name is used on NATS messages so a chat request can be traced
// from the HTTP call through queue consumers.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID is HTTP middleware that extracts X-Request-ID from the request
// header or generates a new one. The ID is stored in the context and set
// on the response header. Oversized client IDs are replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
