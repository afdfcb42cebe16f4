package middleware

import (
	"net/http"
)

// MaxBodySize bounds request bodies. Recovery requests carry no payload
// beyond a few fields.
const MaxBodySize = 64 << 10

// LimitBody caps the size of request bodies
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		next.ServeHTTP(w, r)
	})
}
