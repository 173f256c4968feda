package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	var gotUserID int64
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("валидный cookie", func(t *testing.T) {
		called = false

		rec := httptest.NewRecorder()
		auth.SetAuthCookie(rec, 42)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}

		resp := httptest.NewRecorder()
		auth.Middleware(next).ServeHTTP(resp, req)

		if !called {
			t.Fatal("next handler was not called")
		}
		if gotUserID != 42 {
			t.Errorf("userID = %d, want 42", gotUserID)
		}
	})

	t.Run("валидный bearer-токен", func(t *testing.T) {
		called = false

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+auth.Token(7))

		resp := httptest.NewRecorder()
		auth.Middleware(next).ServeHTTP(resp, req)

		if !called {
			t.Fatal("next handler was not called")
		}
		if gotUserID != 7 {
			t.Errorf("userID = %d, want 7", gotUserID)
		}
	})

	t.Run("без токена", func(t *testing.T) {
		called = false

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := httptest.NewRecorder()
		auth.Middleware(next).ServeHTTP(resp, req)

		if called {
			t.Error("next handler was called without token")
		}
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.Code)
		}
	})

	t.Run("подделанный токен", func(t *testing.T) {
		called = false

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer 42.deadbeef")

		resp := httptest.NewRecorder()
		auth.Middleware(next).ServeHTTP(resp, req)

		if called {
			t.Error("next handler was called with forged token")
		}
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.Code)
		}
	})

	t.Run("токен с чужим секретом", func(t *testing.T) {
		called = false

		other := NewAuthMiddleware("other-secret")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+other.Token(42))

		resp := httptest.NewRecorder()
		auth.Middleware(next).ServeHTTP(resp, req)

		if called {
			t.Error("next handler was called with foreign token")
		}
	})
}
