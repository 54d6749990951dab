package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core/driver"
)

type driverApi struct {
	svc      driver.Service
	validate *validator.Validate
}

func registerDriverAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc driver.Service, validate *validator.Validate) {
	api := driverApi{svc: svc, validate: validate}

	dg := g.Group("/drivers", jwt)

	// admin-only fleet management endpoints
	dg.POST("", api.create, adminMiddleware())
	dg.GET("", api.query, adminMiddleware())
	dg.DELETE("", api.destroyMultiple, adminMiddleware())
	dg.GET("/statuses", api.queryStatuses, adminMiddleware())

	// detail endpoints: admins plus the driver themselves
	ig := dg.Group("/:id", driverOrAdminMiddleware())
	ig.GET("", api.retrieve)
	ig.PUT("/status", api.setStatus)
	ig.PUT("", api.update, adminMiddleware())
	ig.PUT("/assign", api.assign, adminMiddleware())
	ig.DELETE("", api.destroy, adminMiddleware())
}

// Handlers

func (api *driverApi) create(ctx echo.Context) error {
	var data driver.NewDriver
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDriver")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	drv, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating driver")
	}
	return ctx.JSON(http.StatusCreated, drv)
}

func (api *driverApi) query(ctx echo.Context) error {
	filter := new(driver.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []driver.Driver{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	drivers, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying drivers")
	}
	if drivers == nil {
		drivers = []driver.Driver{}
	}
	return ctx.JSON(http.StatusOK, drivers)
}

func (api *driverApi) retrieve(ctx echo.Context) error {
	drv, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driverApi) update(ctx echo.Context) error {
	drv, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data driver.UpdateDriver
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDriver")
	}
	if err = data.Validate(drv, api.validate, api.svc); err != nil {
		return err
	}

	drv, err = api.svc.Update(ctx.Request().Context(), drv.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating driver")
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driverApi) setStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	drv, err := api.svc.SetStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driverApi) assign(ctx echo.Context) error {
	var data AssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}

	drv, err := api.svc.Assign(ctx.Request().Context(), ctx.Param("id"), data.ShuttleID, data.RouteID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, drv)
}

func (api *driverApi) destroy(ctx echo.Context) error {
	drv, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), drv.ID); err != nil {
		return errors.Wrap(err, "deleting driver")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *driverApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting drivers")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *driverApi) queryStatuses(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, driver.AllStatuses)
}

// Payloads

type (
	StatusRequest struct {
		Status string `json:"status" validate:"required,driverstatus"`
	}

	AssignRequest struct {
		ShuttleID string `json:"shuttle_id"`
		RouteID   string `json:"route_id"`
	}
)

func (sr *StatusRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}
