package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/license"
)

type licenseApi struct {
	svc      license.Service
	validate *validator.Validate
}

func registerLicenseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc license.Service, validate *validator.Validate) {
	api := licenseApi{
		svc:      svc,
		validate: validate,
	}

	og := g.Group("/orgs/:id/pools", jwt)
	og.POST("", api.createPool, adminMiddleware())
	og.GET("", api.queryPools)

	pg := g.Group("/pools/:id", jwt)
	pg.GET("", api.retrievePool)
	pg.PUT("", api.updatePool, adminMiddleware())
	pg.DELETE("", api.destroyPool, adminMiddleware())
	pg.GET("/assignments", api.queryPoolAssignments)
	pg.POST("/assignments", api.assign, adminMiddleware())
	pg.POST("/assignments/bulk", api.bulkAssign, adminMiddleware())

	ag := g.Group("/assignments/:id", jwt)
	ag.DELETE("", api.revoke, adminMiddleware())
	ag.POST("/transfer", api.transfer, adminMiddleware())

	g.GET("/users/:id/assignments", api.queryUserAssignments, jwt, selfOrAdminMiddleware("id"))
}

func (api *licenseApi) createPool(ctx echo.Context) error {
	var data license.NewPool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPool")
	}
	data.OrganizationID = ctx.Param("id")

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	pool, err := api.svc.CreatePool(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating pool")
	}
	return ctx.JSON(http.StatusCreated, pool)
}

func (api *licenseApi) queryPools(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	pools, err := api.svc.QueryPools(ctx.Request().Context(), ctx.Param("id"), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying pools")
	}
	if pools == nil {
		pools = []license.Pool{}
	}
	return ctx.JSON(http.StatusOK, pools)
}

func (api *licenseApi) retrievePool(ctx echo.Context) error {
	pool, err := api.svc.GetPool(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding pool by ID")
	}
	return ctx.JSON(http.StatusOK, pool)
}

func (api *licenseApi) updatePool(ctx echo.Context) error {
	var data license.UpdatePool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePool")
	}

	pool, err := api.svc.UpdatePool(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating pool")
	}
	return ctx.JSON(http.StatusOK, pool)
}

func (api *licenseApi) destroyPool(ctx echo.Context) error {
	if err := api.svc.DeletePool(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting pool")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *licenseApi) assign(ctx echo.Context) error {
	var data license.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	asg, err := api.svc.Assign(ctx.Request().Context(), ctx.Param("id"), data.UserID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "assigning seat")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *licenseApi) bulkAssign(ctx echo.Context) error {
	var data BulkAssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkAssignRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	result, err := api.svc.BulkAssign(ctx.Request().Context(), ctx.Param("id"), data.UserIDs, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "bulk assigning seats")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *licenseApi) revoke(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	asg, err := api.svc.Revoke(ctx.Request().Context(), ctx.Param("id"), claims.Subject, ctx.QueryParam("reason"))
	if err != nil {
		return errors.Wrap(err, "revoking seat")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *licenseApi) transfer(ctx echo.Context) error {
	var data TransferRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransferRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	asg, err := api.svc.Transfer(ctx.Request().Context(), ctx.Param("id"), data.ToUserID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "transferring seat")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *licenseApi) queryPoolAssignments(ctx echo.Context) error {
	asgs, err := api.svc.PoolAssignments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying pool assignments")
	}
	if asgs == nil {
		asgs = []license.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asgs)
}

func (api *licenseApi) queryUserAssignments(ctx echo.Context) error {
	asgs, err := api.svc.UserAssignments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying user assignments")
	}
	if asgs == nil {
		asgs = []license.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asgs)
}

type (
	BulkAssignRequest struct {
		UserIDs []string `json:"user_ids" validate:"required,min=1,dive,uuid4"`
	}

	TransferRequest struct {
		ToUserID string `json:"to_user_id" validate:"required,uuid4"`
	}
)
