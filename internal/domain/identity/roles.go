package identity

import (
	"errors"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/dentalcare/clinic/internal/platform/auth"
)

// ProfileRoles adds the role stored on the caller's tutor record to the roles
// carried by the token. It runs after authentication and before any
// RequireRole check, so promoting a user to dentist in the database takes
// effect without reissuing tokens. Lookup failures leave the token roles as
// they are.
func ProfileRoles(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			uid := auth.UserIDFromContext(ctx)
			if uid == "" {
				return next(c)
			}

			tutor, err := svc.tutors.GetByID(ctx, uid)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					svc.logger.Warn().Err(err).Str("user_id", uid).Msg("stored role lookup failed")
				}
				return next(c)
			}

			roles := auth.RolesFromContext(ctx)
			if tutor.Role == "" || slices.Contains(roles, tutor.Role) {
				return next(c)
			}
			merged := append(slices.Clone(roles), tutor.Role)
			ctx = auth.WithIdentity(ctx, uid, auth.EmailFromContext(ctx), merged)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
