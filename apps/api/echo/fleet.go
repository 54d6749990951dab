package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/safiri/core/fleet"
)

type fleetApi struct {
	svc      fleet.Service
	validate *validator.Validate
}

func registerFleetAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc fleet.Service, validate *validator.Validate) {
	api := fleetApi{svc: svc, validate: validate}

	// public read endpoints: the rider-facing app needs these without a session
	g.GET("/timetable", api.timetable)
	g.GET("/routes", api.queryRoutes)
	g.GET("/routes/:id", api.retrieveRoute)
	g.GET("/stops", api.queryStops)
	g.GET("/schedules", api.querySchedules)

	// admin-only management endpoints
	ag := g.Group("/fleet", jwt, adminMiddleware())

	ag.POST("/shuttles", api.createShuttle)
	ag.GET("/shuttles", api.queryShuttles)
	ag.GET("/shuttles/:id", api.retrieveShuttle)
	ag.PUT("/shuttles/:id", api.updateShuttle)
	ag.DELETE("/shuttles", api.destroyShuttles)

	ag.POST("/stops", api.createStop)
	ag.DELETE("/stops", api.destroyStops)

	ag.POST("/routes", api.createRoute)
	ag.PUT("/routes/:id", api.updateRoute)
	ag.DELETE("/routes", api.destroyRoutes)

	ag.POST("/schedules", api.createSchedule)
	ag.PUT("/schedules/:id", api.updateSchedule)
	ag.DELETE("/schedules", api.destroySchedules)
}

// Public handlers

func (api *fleetApi) timetable(ctx echo.Context) error {
	entries, err := api.svc.Timetable(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building timetable")
	}
	if entries == nil {
		entries = []fleet.TimetableEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *fleetApi) queryRoutes(ctx echo.Context) error {
	routes, err := api.svc.QueryRoutes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying routes")
	}
	if routes == nil {
		routes = []fleet.Route{}
	}
	return ctx.JSON(http.StatusOK, routes)
}

func (api *fleetApi) retrieveRoute(ctx echo.Context) error {
	rt, err := api.svc.GetRoute(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rt)
}

func (api *fleetApi) queryStops(ctx echo.Context) error {
	stops, err := api.svc.QueryStops(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying stops")
	}
	if stops == nil {
		stops = []fleet.Stop{}
	}
	return ctx.JSON(http.StatusOK, stops)
}

func (api *fleetApi) querySchedules(ctx echo.Context) error {
	schedules, err := api.svc.QuerySchedules(ctx.Request().Context(), ctx.QueryParam("route_id"))
	if err != nil {
		return errors.Wrap(err, "querying schedules")
	}
	if schedules == nil {
		schedules = []fleet.Schedule{}
	}
	return ctx.JSON(http.StatusOK, schedules)
}

// Shuttle handlers

func (api *fleetApi) createShuttle(ctx echo.Context) error {
	var data fleet.NewShuttle
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewShuttle")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sh, err := api.svc.CreateShuttle(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating shuttle")
	}
	return ctx.JSON(http.StatusCreated, sh)
}

func (api *fleetApi) queryShuttles(ctx echo.Context) error {
	shuttles, err := api.svc.QueryShuttles(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying shuttles")
	}
	if shuttles == nil {
		shuttles = []fleet.Shuttle{}
	}
	return ctx.JSON(http.StatusOK, shuttles)
}

func (api *fleetApi) retrieveShuttle(ctx echo.Context) error {
	sh, err := api.svc.GetShuttle(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sh)
}

func (api *fleetApi) updateShuttle(ctx echo.Context) error {
	sh, err := api.svc.GetShuttle(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data fleet.UpdateShuttle
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateShuttle")
	}
	if err = data.Validate(sh, api.validate); err != nil {
		return err
	}

	sh, err = api.svc.UpdateShuttle(ctx.Request().Context(), sh.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating shuttle")
	}
	return ctx.JSON(http.StatusOK, sh)
}

func (api *fleetApi) destroyShuttles(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.DeleteShuttles(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting shuttles")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Stop handlers

func (api *fleetApi) createStop(ctx echo.Context) error {
	var data fleet.NewStop
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStop")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.CreateStop(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating stop")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *fleetApi) destroyStops(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.DeleteStops(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting stops")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Route handlers

func (api *fleetApi) createRoute(ctx echo.Context) error {
	var data fleet.NewRoute
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoute")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rt, err := api.svc.CreateRoute(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating route")
	}
	return ctx.JSON(http.StatusCreated, rt)
}

func (api *fleetApi) updateRoute(ctx echo.Context) error {
	rt, err := api.svc.GetRoute(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data fleet.UpdateRoute
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRoute")
	}
	if err = data.Validate(rt, api.validate); err != nil {
		return err
	}

	rt, err = api.svc.UpdateRoute(ctx.Request().Context(), rt.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating route")
	}
	return ctx.JSON(http.StatusOK, rt)
}

func (api *fleetApi) destroyRoutes(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.DeleteRoutes(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting routes")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Schedule handlers

func (api *fleetApi) createSchedule(ctx echo.Context) error {
	var data fleet.NewSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sc, err := api.svc.CreateSchedule(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *fleetApi) updateSchedule(ctx echo.Context) error {
	sc, err := api.svc.GetSchedule(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data fleet.UpdateSchedule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchedule")
	}
	if err = data.Validate(sc, api.validate); err != nil {
		return err
	}

	sc, err = api.svc.UpdateSchedule(ctx.Request().Context(), sc.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating schedule")
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *fleetApi) destroySchedules(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.DeleteSchedules(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting schedules")
	}
	return ctx.NoContent(http.StatusNoContent)
}
