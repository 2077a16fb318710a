// Package request provides request ID middleware. Every request gets an ID,
// either propagated from the X-Request-ID header or freshly generated, so
// logs and ledger entries from one request correlate.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"custodian/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

// Middleware assigns the request ID and echoes it back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
