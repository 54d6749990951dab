package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/fleet"
	"github.com/trezcool/safiri/core/session"
	"github.com/trezcool/safiri/core/user"
)

var (
	errUnauthorized    = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errRefreshExpired  = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden   = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound    = echo.NewHTTPError(http.StatusNotFound, "not found")
	errMissingClientID = echo.NewHTTPError(http.StatusBadRequest, "missing X-Client-ID header")
	errUnknownSurface  = echo.NewHTTPError(http.StatusBadRequest, "unknown credentials surface")
)

// statusOf maps domain errors to their HTTP status; ok is false for errors
// that are not part of the API contract (treated as server errors).
func statusOf(err error) (int, bool) {
	switch err {
	case session.ErrNotAuthenticated:
		return http.StatusUnauthorized, true
	case session.ErrAccessDenied,
		session.ErrAccountDisabled,
		session.ErrTooManyAttempts,
		session.ErrNotDriver:
		return http.StatusForbidden, true
	case session.ErrNotFound,
		session.ErrDriverNotFound,
		user.ErrNotFound,
		driver.ErrNotFound,
		admin.ErrNotFound,
		fleet.ErrShuttleNotFound,
		fleet.ErrStopNotFound,
		fleet.ErrRouteNotFound,
		fleet.ErrScheduleNotFound:
		return http.StatusNotFound, true
	case session.ErrInvalidCredentials,
		session.ErrDuplicateEmail,
		session.ErrInvalidEmail,
		session.ErrWeakPassword,
		session.ErrIncorrectPassword,
		driver.ErrInvalidCredentials,
		driver.ErrIncorrectPassword,
		user.ErrEmailExists,
		driver.ErrDriverIDExists,
		driver.ErrEmailExists:
		return http.StatusBadRequest, true
	case session.ErrProvisioningFailed:
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := statusOf(origErr); ok {
				code = status
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var sess session.Session
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				sess.ID = claims.Subject
				sess.Name = claims.Name
				sess.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), sess)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
