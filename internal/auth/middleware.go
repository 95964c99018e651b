package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const subjectKey contextKey = "subject"

// ErrNoToken means the request carried no bearer token.
var ErrNoToken = errors.New("auth: missing bearer token")

// RequireBearer rejects requests that do not present a valid token for scope.
// onDenied writes the refusal; the error says why.
//
// On success the token subject is stored in the request context, see
// SubjectFromContext.
func RequireBearer(tokens *TokenService, scope string, onDenied func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				onDenied(w, r, ErrNoToken)
				return
			}
			subject, err := tokens.Validate(raw, scope)
			if err != nil {
				onDenied(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the subject of the token that authorised the
// request, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok && s != ""
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
