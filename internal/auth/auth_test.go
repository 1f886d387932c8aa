package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

var secret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	raw, err := Token(secret, 42, time.Minute)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	id, err := ParseToken(secret, raw)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if id.UserID != 42 || id.Anonymous {
		t.Fatalf("id=%+v", id)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	raw, err := Token(secret, 42, time.Minute)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := ParseToken([]byte("other"), raw); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestParseToken_Expired(t *testing.T) {
	raw, err := Token(secret, 42, -time.Minute)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := ParseToken(secret, raw); err == nil {
		t.Fatalf("expected expiry failure")
	}
}

func identityProbe(t *testing.T) (http.Handler, *model.Identity) {
	t.Helper()
	got := &model.Identity{}
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
	})
	return Middleware(secret, zerolog.Nop())(next), got
}

func TestMiddleware_ValidToken(t *testing.T) {
	h, got := identityProbe(t)
	raw, err := Token(secret, 7, time.Minute)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sources", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID != 7 || got.Anonymous {
		t.Fatalf("identity=%+v", got)
	}
}

func TestMiddleware_DegradesToAnonymous(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no header", func(*http.Request) {}},
		{"garbage token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not.a.jwt")
		}},
		{"wrong secret", func(r *http.Request) {
			raw, err := Token([]byte("other"), 7, time.Minute)
			if err != nil {
				t.Fatalf("Token: %v", err)
			}
			r.Header.Set("Authorization", "Bearer "+raw)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, got := identityProbe(t)
			req := httptest.NewRequest(http.MethodGet, "/sources", nil)
			tc.setup(req)
			h.ServeHTTP(httptest.NewRecorder(), req)
			if !got.Anonymous {
				t.Fatalf("identity=%+v want anonymous", got)
			}
		})
	}
}

func TestFromContext_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := FromContext(req.Context()); !id.Anonymous {
		t.Fatalf("identity=%+v want anonymous", id)
	}
}
