package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const callerKey = "caller"

// JWTAuth проверяет Bearer токен HS256 и кладёт model.Caller в контекст
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing bearer token"})
			}

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "invalid token"})
			}

			caller, err := callerFromClaims(claims)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: err.Error()})
			}

			c.Set(callerKey, caller)
			return next(c)
		}
	}
}

func callerFromClaims(claims jwt.MapClaims) (model.Caller, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return model.Caller{}, fmt.Errorf("subject claim is required")
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return model.Caller{}, fmt.Errorf("subject claim must be a user id")
	}

	roleClaim, _ := claims["role"].(string)
	role := model.Role(roleClaim)
	if !role.Valid() {
		return model.Caller{}, fmt.Errorf("unknown role %q", roleClaim)
	}

	return model.Caller{ID: id, Role: role}, nil
}

// callerFrom вызывающий, установленный JWTAuth
func callerFrom(c echo.Context) model.Caller {
	caller, _ := c.Get(callerKey).(model.Caller)
	return caller
}

// SignToken выпускает токен для вызывающего
func SignToken(secret string, caller model.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(caller.ID, 10),
		"role": string(caller.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
