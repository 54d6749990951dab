package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// clientIDHeader carries the caller's client-context ID; every session
// endpoint is scoped to it.
const clientIDHeader = "X-Client-ID"

func getClientID(ctx echo.Context) (string, error) {
	clientID := ctx.Request().Header.Get(clientIDHeader)
	if clientID == "" {
		return "", errMissingClientID
	}
	return clientID, nil
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// driverOrAdminMiddleware admits admins and the driver whose account ID is in
// the :id path param.
func driverOrAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin || (claims.IsDriver && ctx.Param("id") == claims.Subject) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
