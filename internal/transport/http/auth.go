package httptransport

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"place-discovery-service/internal/apperr"
)

type ctxKey int

const callerKey ctxKey = iota

// CallerID returns the authenticated caller, or "" for anonymous requests.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

// Authenticator maps an HS256 bearer token to a caller id (the "sub"
// claim). Requests without a token are anonymous and resolve to the
// default provider credential.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || len(a.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeErr(w, apperr.Unauthorized("authorization header must be a bearer token"))
			return
		}

		sub, err := a.subject(strings.TrimSpace(raw))
		if err != nil {
			writeErr(w, apperr.Unauthorized("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) subject(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}
