package middleware

import (
	"net/http"
	"regexp"
)

const localhostOrigin = "http://localhost"

var reLocalhost = regexp.MustCompile(`^http://localhost(:\d+)?$`)

// CORSPolicy decides which browser origins may call the API.
//
//   - "*" allows every origin.
//   - "http://localhost" allows http://localhost on any port.
//   - Any other entry must match the Origin header exactly.
type CORSPolicy struct {
	allowAll       bool
	allowLocalhost bool
	fixed          map[string]struct{}
}

// NewCORSPolicy builds a policy from the configured origin list.
func NewCORSPolicy(origins []string) *CORSPolicy {
	p := &CORSPolicy{fixed: make(map[string]struct{})}
	for _, o := range origins {
		switch o {
		case "*":
			p.allowAll = true
		case localhostOrigin:
			p.allowLocalhost = true
		default:
			p.fixed[o] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin may make cross-origin requests.
func (p *CORSPolicy) Allowed(origin string) bool {
	if p.allowAll {
		return true
	}
	if _, ok := p.fixed[origin]; ok {
		return true
	}
	return p.allowLocalhost && reLocalhost.MatchString(origin)
}

// CORS answers preflight requests itself and decorates every other response
// with the allow-origin header.
//
// A preflight from an allowed origin gets 200 with the allowed methods and
// headers cached for an hour; any other preflight gets 403. On normal
// responses, an allow-all policy always sends "*", otherwise an allowed
// Origin is echoed back with Vary: Origin.
func CORS(policy *CORSPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if r.Method == http.MethodOptions {
				if !policy.Allowed(origin) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusForbidden)
					w.Write([]byte(`{"error":"Forbidden"}` + "\n"))
					return
				}
				allow := origin
				if allow == "" {
					allow = "*"
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "*")
				h.Set("Access-Control-Max-Age", "3600")
				if allow != "*" {
					h.Add("Vary", "Origin")
				}
				w.WriteHeader(http.StatusOK)
				return
			}

			switch {
			case policy.allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && policy.Allowed(origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			next.ServeHTTP(w, r)
		})
	}
}
