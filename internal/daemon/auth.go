package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Operator login headers. A kiosk front end that has logged an operator in
// sends both on attendance requests so audit entries name that operator.
const (
	operatorHeader         = "X-Operator"
	operatorPasswordHeader = "X-Operator-Password"
)

// requireToken guards next with paths.api_token. An empty token leaves the
// API open, which suits a kiosk bound to loopback.
func requireToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	want := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="attendance"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next(w, r)
	}
}
