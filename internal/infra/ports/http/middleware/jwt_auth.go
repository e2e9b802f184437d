package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/PairCall/internal/infra/appctx"
	"github.com/qrave1/PairCall/internal/infra/ports/http/dto"
)

const (
	ParticipantHeader = "X-Participant-ID"
	maxParticipantLen = 128
)

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: dto.CodeUnauthorized, Message: msg})
}

func withParticipant(c echo.Context, ref string) {
	c.SetRequest(c.Request().WithContext(appctx.WithParticipant(c.Request().Context(), ref)))
}

// Identity выбирает способ опознать участника: JWT, если задан секрет, иначе заголовок X-Participant-ID
func Identity(secret string) echo.MiddlewareFunc {
	if secret != "" {
		return JWTAuthMiddleware(secret)
	}

	return HeaderIdentity()
}

func HeaderIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ref := strings.TrimSpace(c.Request().Header.Get(ParticipantHeader))
			if ref == "" || len(ref) > maxParticipantLen {
				return unauthorized(c, "missing or malformed "+ParticipantHeader)
			}

			withParticipant(c, ref)

			return next(c)
		}
	}
}

// bearer достаёт токен из Authorization или из cookie jwt
func bearer(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}

	if cookie, err := c.Cookie("jwt"); err == nil {
		return cookie.Value
	}

	return ""
}

func JWTAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c)
			if raw == "" {
				return unauthorized(c, "missing or malformed jwt")
			}

			token, err := jwt.ParseWithClaims(
				raw,
				&jwt.RegisteredClaims{},
				func(token *jwt.Token) (any, error) {
					return []byte(secret), nil
				},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil {
				return unauthorized(c, "invalid or expired jwt")
			}

			claims, ok := token.Claims.(*jwt.RegisteredClaims)
			if !ok || !token.Valid {
				return unauthorized(c, "invalid or expired jwt")
			}

			if claims.Subject == "" || len(claims.Subject) > maxParticipantLen {
				return unauthorized(c, "invalid subject")
			}

			withParticipant(c, claims.Subject)

			return next(c)
		}
	}
}
