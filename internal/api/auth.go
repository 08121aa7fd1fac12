package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HeaderUserID carries the caller id when bearer auth is disabled.
const HeaderUserID = "X-User-ID"

var (
	ErrAuthRequired = errors.New("authorization header required")
	ErrAuthFormat   = errors.New("invalid authorization format")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// AuthOptions configures caller identity. An empty Secret disables bearer
// auth and the X-User-ID header is trusted instead.
type AuthOptions struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the caller id resolved by the identity middleware. It is
// empty for anonymous callers.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

type authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func newAuthenticator(o AuthOptions, now func() time.Time) *authenticator {
	return &authenticator{
		secret: []byte(strings.TrimSpace(o.Secret)),
		issuer: strings.TrimSpace(o.Issuer),
		leeway: o.Leeway,
		now:    now,
	}
}

func (a *authenticator) enabled() bool { return len(a.secret) > 0 }

// identify resolves the caller id of r.
func (a *authenticator) identify(r *http.Request) (string, error) {
	if !a.enabled() {
		return strings.TrimSpace(r.Header.Get(HeaderUserID)), nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrAuthRequired
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrAuthFormat
	}
	return a.subject(strings.TrimSpace(parts[1]))
}

func (a *authenticator) subject(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", ErrTokenInvalid
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return sub, nil
}

// identity resolves the caller and stores it on the request context.
func (a *API) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.state().auth.identify(r)
		if err != nil {
			msg := "Invalid token"
			switch {
			case errors.Is(err, ErrAuthRequired):
				msg = "Authorization header required"
			case errors.Is(err, ErrAuthFormat):
				msg = "Invalid authorization format"
			case errors.Is(err, ErrTokenExpired):
				msg = "Token expired"
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			a.respondError(w, r, http.StatusUnauthorized, msg, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}
