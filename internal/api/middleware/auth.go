package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/domain"
)

type contextKey string

const ClientIDKey contextKey = "client_id"

// AuthValidator resolves a bearer token to a client id.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// StaticKey accepts exactly one configured token.
type StaticKey struct {
	key string
}

func NewStaticKey(key string) *StaticKey {
	return &StaticKey{key: key}
}

func (s *StaticKey) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if s.key == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.key)) != 1 {
		return "", domain.ErrInvalidAPIKey
	}
	return "static", nil
}

// APIKeyAuth requires a bearer token. Browsers cannot set headers on
// websocket upgrades, so those may pass the token as access_token instead.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing authorization header")
				return
			}

			clientID, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				unauthorized(w, domain.ErrInvalidAPIKey.Message)
				return
			}

			// the header is shared with outer middleware for access logging
			r.Header.Set("X-Client-ID", clientID)
			ctx := context.WithValue(r.Context(), ClientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="reposcout"`)
	api.JSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: message, Code: domain.ErrCodeUnauthorized})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		token, found := strings.CutPrefix(authHeader, "Bearer ")
		return token, found && token != ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	return "", false
}

func GetClientID(ctx context.Context) string {
	clientID, _ := ctx.Value(ClientIDKey).(string)
	return clientID
}
