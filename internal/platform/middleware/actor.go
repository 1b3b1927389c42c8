package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const actorKey = "actor"

// Actor resolves the acting user name for each request and stashes it in the
// echo context. Resolution order:
//  1. a bearer token signed with the configured HMAC secret — subject claim
//  2. the X-Actor header
//  3. the configured default actor
//
// This is a single-actor pass-through, not authentication: the engine records
// who did what, it does not decide who may do what.
func Actor(tokenSecret, defaultActor string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := resolveActor(c, tokenSecret, defaultActor)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

func resolveActor(c echo.Context, tokenSecret, defaultActor string) (string, error) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") && tokenSecret != "" {
		raw := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(tokenSecret), nil
		})
		if err != nil {
			return "", fmt.Errorf("invalid actor token: %w", err)
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return "", fmt.Errorf("actor token has no subject")
		}
		return sub, nil
	}

	if actor := strings.TrimSpace(c.Request().Header.Get("X-Actor")); actor != "" {
		return actor, nil
	}

	return defaultActor, nil
}

// ActorFromEcho returns the actor resolved by the Actor middleware, or empty.
func ActorFromEcho(c echo.Context) string {
	actor, _ := c.Get(actorKey).(string)
	return actor
}
