package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/safiri/core"
)

func newTestContext(t *testing.T) echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func Test_getContextClaims(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		ctx := newTestContext(t)
		if _, err := getContextClaims(ctx); err != errUnauthorized {
			t.Errorf("getContextClaims() error = %v, want %v", err, errUnauthorized)
		}
	})

	t.Run("valid claims", func(t *testing.T) {
		ctx := newTestContext(t)
		ctx.Set(appJWTConfig.ContextKey, &jwt.Token{Claims: &Claims{Name: "Jane", Role: "student"}})

		claims, err := getContextClaims(ctx)
		if err != nil {
			t.Fatalf("getContextClaims(): %v", err)
		}
		if claims.Name != "Jane" || claims.Role != "student" {
			t.Errorf("claims = %+v", claims)
		}
	})

	t.Run("wrong claims type shuts down", func(t *testing.T) {
		ctx := newTestContext(t)
		ctx.Set(appJWTConfig.ContextKey, &jwt.Token{Claims: jwt.MapClaims{"sub": "x"}})

		_, err := getContextClaims(ctx)
		if err == nil {
			t.Fatal("getContextClaims() error = nil")
		}
		if !core.IsShutdown(err) {
			t.Errorf("IsShutdown(%v) = false, want true", err)
		}
	})
}
