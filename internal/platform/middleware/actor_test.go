package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-actor-secret"

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func runActor(t *testing.T, configure func(req *http.Request)) (string, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	configure(req)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var actor string
	handler := Actor(testSecret, "system")(func(c echo.Context) error {
		actor = ActorFromEcho(c)
		return nil
	})
	return actor, handler(c)
}

func TestActorDefault(t *testing.T) {
	actor, err := runActor(t, func(req *http.Request) {})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if actor != "system" {
		t.Errorf("actor = %q, want system", actor)
	}
}

func TestActorFromHeader(t *testing.T) {
	actor, err := runActor(t, func(req *http.Request) {
		req.Header.Set("X-Actor", "dr.lopez")
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if actor != "dr.lopez" {
		t.Errorf("actor = %q, want dr.lopez", actor)
	}
}

func TestActorFromBearerToken(t *testing.T) {
	raw := signedToken(t, testSecret, "tech.diaz")
	actor, err := runActor(t, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
		// The token outranks the header.
		req.Header.Set("X-Actor", "someone.else")
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if actor != "tech.diaz" {
		t.Errorf("actor = %q, want tech.diaz", actor)
	}
}

func TestActorRejectsBadToken(t *testing.T) {
	raw := signedToken(t, "wrong-secret", "intruder")
	_, err := runActor(t, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("got %v, want 401", err)
	}
}

func TestActorRejectsTokenWithoutSubject(t *testing.T) {
	raw := signedToken(t, testSecret, "")
	_, err := runActor(t, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("got %v, want 401", err)
	}
}
