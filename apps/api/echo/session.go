package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/session"
	"github.com/trezcool/safiri/core/user"
	identitysvc "github.com/trezcool/safiri/services/identity"
)

type sessionApi struct {
	sessions *session.Manager
	idSvc    *identitysvc.Service
	validate *validator.Validate
}

func registerSessionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	sessions *session.Manager,
	idSvc *identitysvc.Service,
	validate *validator.Validate,
) {
	api := sessionApi{
		sessions: sessions,
		idSvc:    idSvc,
		validate: validate,
	}

	sg := g.Group("/session")

	// un-authed endpoints
	// TODO: rate limit `/password-reset` & `/password-reset-confirm`
	sg.GET("", api.current)
	sg.POST("/sign-up", api.signUp)
	sg.POST("/sign-in", api.signIn)
	sg.POST("/admin/sign-in", api.adminSignIn)
	sg.POST("/driver/sign-in", api.driverSignIn)
	sg.POST("/guest", api.continueAsGuest)
	sg.POST("/sign-out", api.signOut)
	sg.POST("/password-reset", api.resetPassword)
	sg.POST("/password-reset-confirm", api.confirmPasswordReset)

	sg.GET("/credentials/:surface", api.loadCredentials)
	sg.DELETE("/credentials/:surface", api.clearCredentials)

	// authed endpoints
	ag := sg.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.PUT("/profile", api.updateProfile)
	ag.PUT("/driver/profile", api.updateDriverProfile)
	ag.PUT("/driver/password", api.changeDriverPassword)
}

// resolver returns the caller's session resolver, keyed by the X-Client-ID header.
func (api *sessionApi) resolver(ctx echo.Context) (session.Resolver, error) {
	clientID, err := getClientID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := api.sessions.Resolver(ctx.Request().Context(), clientID)
	return res, errors.Wrap(err, "getting session resolver")
}

// Handlers

type sessionState struct {
	State   string           `json:"state"`
	Loading bool             `json:"loading"`
	Session *session.Session `json:"session,omitempty"`
}

func (api *sessionApi) currentState(res session.Resolver) sessionState {
	state := sessionState{
		State:   res.State().String(),
		Loading: res.IsLoading(),
	}
	if sess, ok := res.Current(); ok {
		state.Session = &sess
	}
	return state
}

func (api *sessionApi) current(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.currentState(res))
}

func (api *sessionApi) signUp(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data session.SignUpInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignUpInput")
	}

	usr, err := res.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *sessionApi) signIn(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data SignInRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignInRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := res.SignIn(ctx.Request().Context(), data.Email, data.Password, data.Remember)
	if err != nil {
		return err
	}
	return api.tokenResponse(ctx, sess)
}

func (api *sessionApi) adminSignIn(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data SignInRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignInRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := res.AdminSignIn(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	return api.tokenResponse(ctx, sess)
}

func (api *sessionApi) driverSignIn(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data DriverSignInRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DriverSignInRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := res.DriverSignIn(ctx.Request().Context(), data.DriverID, data.Password, data.Remember)
	if err != nil {
		return err
	}
	return api.tokenResponse(ctx, sess)
}

func (api *sessionApi) continueAsGuest(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	sess, err := res.ContinueAsGuest(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "continuing as guest")
	}
	return ctx.JSON(http.StatusOK, SessionResponse{Session: sess})
}

func (api *sessionApi) signOut(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}
	if err = res.SignOut(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "signing out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.idSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *sessionApi) confirmPasswordReset(ctx echo.Context) error {
	var data identitysvc.ResetPasswordInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPasswordInput")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	if err := api.idSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *sessionApi) loadCredentials(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	surface := session.Surface(ctx.Param("surface"))
	if surface != session.SurfaceStudent && surface != session.SurfaceDriver {
		return errUnknownSurface
	}
	cred, err := res.LoadCredentials(ctx.Request().Context(), surface)
	if err != nil {
		switch errors.Cause(err) {
		case session.ErrKeyNotFound:
			return errHttpNotFound
		default:
			return errors.Wrap(err, "loading remembered credentials")
		}
	}
	return ctx.JSON(http.StatusOK, cred)
}

func (api *sessionApi) clearCredentials(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	surface := session.Surface(ctx.Param("surface"))
	if surface != session.SurfaceStudent && surface != session.SurfaceDriver {
		return errUnknownSurface
	}
	if err = res.ClearCredentials(ctx.Request().Context(), surface); err != nil {
		return errors.Wrap(err, "clearing remembered credentials")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) refreshToken(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	token, err := refreshToken(ctx, res)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *sessionApi) updateProfile(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}

	sess, err := res.UpdateUserProfile(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SessionResponse{Session: sess})
}

func (api *sessionApi) updateDriverProfile(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data driver.UpdateDriver
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDriver")
	}

	sess, err := res.UpdateDriverProfile(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SessionResponse{Session: sess})
}

func (api *sessionApi) changeDriverPassword(ctx echo.Context) error {
	res, err := api.resolver(ctx)
	if err != nil {
		return err
	}

	var data ChangePasswordRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePasswordRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = res.ChangeDriverPassword(ctx.Request().Context(), data.Current, data.New); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password changed."})
}

func (api *sessionApi) tokenResponse(ctx echo.Context, sess session.Session) error {
	token, err := GenerateToken(GetSessionClaims(sess))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token, Session: &sess})
}

// Payloads

type (
	SignInRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		Remember bool   `json:"remember"`
	}

	DriverSignInRequest struct {
		DriverID string `json:"driver_id" validate:"required"`
		Password string `json:"password" validate:"required"`
		Remember bool   `json:"remember"`
	}

	ChangePasswordRequest struct {
		Current string `json:"current" validate:"required"`
		New     string `json:"new" validate:"required,min=6"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	TokenResponse struct {
		Token   string           `json:"token"`
		Session *session.Session `json:"session,omitempty"`
	}

	SessionResponse struct {
		Session session.Session `json:"session"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (sr *SignInRequest) Validate(validate *validator.Validate) error {
	sr.Email = core.CleanString(sr.Email, true /* lower */)
	return validate.Struct(sr)
}

func (dr *DriverSignInRequest) Validate(validate *validator.Validate) error {
	dr.DriverID = core.CleanString(dr.DriverID, true /* lower */)
	return validate.Struct(dr)
}

func (cr *ChangePasswordRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(cr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
