package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestWithAuthAcceptsBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := signJWT("user-1", "org-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	called := false
	h := withAuth(func(c echo.Context) error {
		called = true
		if orgID(c) != "org-1" || userID(c) != "user-1" {
			t.Fatalf("claims not propagated: org=%q user=%q", orgID(c), userID(c))
		}
		return c.NoContent(http.StatusOK)
	}, secret)

	if err := h(ctx); err != nil {
		t.Fatalf("withAuth: %v", err)
	}
	if !called {
		t.Fatalf("inner handler not reached")
	}
}

func TestWithAuthRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	expired, err := signJWT("user-1", "org-1", secret, -time.Minute)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}
	wrongKey, err := signJWT("user-1", "org-1", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}

	cases := map[string]string{
		"missing": "",
		"expired": "Bearer " + expired,
		"forged":  "Bearer " + wrongKey,
		"garbage": "Bearer not.a.token",
	}
	e := echo.New()
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		ctx := e.NewContext(req, httptest.NewRecorder())

		h := withAuth(func(c echo.Context) error {
			t.Fatalf("%s: handler must not run", name)
			return nil
		}, secret)
		err := h(ctx)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %v", name, err)
		}
	}
}

func TestWithAuthReadsCookie(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := signJWT("user-1", "org-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("signJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	ctx := e.NewContext(req, httptest.NewRecorder())

	h := withAuth(func(c echo.Context) error { return c.NoContent(http.StatusOK) }, secret)
	if err := h(ctx); err != nil {
		t.Fatalf("cookie auth failed: %v", err)
	}
}
