package auth

import (
	"context"
	"net/http"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseMiddleware authenticates requests with Firebase ID tokens. The role
// comes from the "role" custom claim and defaults to tutor.
func FirebaseMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil || token.UID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			role, _ := token.Claims["role"].(string)
			if role == "" {
				role = RoleTutor
			}
			email, _ := token.Claims["email"].(string)

			setIdentity(c, token.UID, email, []string{role})
			return next(c)
		}
	}
}
