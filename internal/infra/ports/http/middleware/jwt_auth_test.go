package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/PairCall/internal/infra/appctx"
	"github.com/qrave1/PairCall/internal/usecase"
)

// serve прогоняет запрос через middleware и возвращает код и участника из контекста
func serve(t *testing.T, mw echo.MiddlewareFunc, prepare func(*http.Request)) (int, string) {
	t.Helper()

	e := echo.New()

	var got string
	e.GET("/", func(c echo.Context) error {
		got, _ = appctx.Participant(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}, mw)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	prepare(req)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec.Code, got
}

func TestHeaderIdentity(t *testing.T) {
	code, got := serve(t, Identity(""), func(r *http.Request) {
		r.Header.Set(ParticipantHeader, " alice ")
	})
	if code != http.StatusOK || got != "alice" {
		t.Fatalf("code=%d participant=%q, want 200 alice", code, got)
	}

	code, _ = serve(t, Identity(""), func(*http.Request) {})
	if code != http.StatusUnauthorized {
		t.Fatalf("code=%d without header, want %d", code, http.StatusUnauthorized)
	}
}

func TestJWTAuth(t *testing.T) {
	token, err := usecase.NewTokenUsecase([]byte("s3cret")).Issue("bob", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	code, got := serve(t, Identity("s3cret"), func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	if code != http.StatusOK || got != "bob" {
		t.Fatalf("code=%d participant=%q, want 200 bob", code, got)
	}

	code, got = serve(t, Identity("s3cret"), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	})
	if code != http.StatusOK || got != "bob" {
		t.Fatalf("cookie: code=%d participant=%q, want 200 bob", code, got)
	}

	// заголовок X-Participant-ID при включённом JWT не работает
	code, _ = serve(t, Identity("s3cret"), func(r *http.Request) {
		r.Header.Set(ParticipantHeader, "mallory")
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("header only: code=%d, want %d", code, http.StatusUnauthorized)
	}

	forged, err := usecase.NewTokenUsecase([]byte("other")).Issue("mallory", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	code, _ = serve(t, Identity("s3cret"), func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+forged)
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("forged: code=%d, want %d", code, http.StatusUnauthorized)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "mallory"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	code, _ = serve(t, Identity("s3cret"), func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+unsigned)
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("alg none: code=%d, want %d", code, http.StatusUnauthorized)
	}
}
