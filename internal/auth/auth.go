// Package auth extracts the requester identity from bearer tokens. The
// authentication protocol itself lives upstream; this package only recovers
// the owner id the access-control decision needs.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

type ctxKey struct{}

// Anonymous is the identity of requests without a usable token.
var Anonymous = model.Identity{Anonymous: true}

// FromContext returns the identity stored by Middleware, or Anonymous.
func FromContext(ctx context.Context) model.Identity {
	if id, ok := ctx.Value(ctxKey{}).(model.Identity); ok {
		return id
	}
	return Anonymous
}

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware parses an optional "Authorization: Bearer <jwt>" header signed
// with the shared HMAC secret. Missing or invalid tokens degrade to the
// anonymous identity rather than rejecting the request; private sources are
// then simply not visible.
func Middleware(secret []byte, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			id := Anonymous
			if raw := bearerToken(r); raw != "" && len(secret) > 0 {
				parsed, err := ParseToken(secret, raw)
				if err != nil {
					logger.Debug().Err(err).Msg("rejecting bearer token")
				} else {
					id = parsed
				}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		}
		return http.HandlerFunc(fn)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(h)
}

// ParseToken validates the token and recovers the user id from the "uid"
// claim.
func ParseToken(secret []byte, raw string) (model.Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return model.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Identity{}, fmt.Errorf("unexpected claims type %T", tok.Claims)
	}
	uid, ok := claims["uid"].(float64)
	if !ok {
		return model.Identity{}, fmt.Errorf("token has no numeric uid claim")
	}
	return model.Identity{UserID: int64(uid)}, nil
}

// Token mints a signed identity token; used by tests and tooling.
func Token(secret []byte, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
