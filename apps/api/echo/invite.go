package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/invite"
)

type invitationApi struct {
	svc      invite.Service
	validate *validator.Validate
}

func registerInvitationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc invite.Service, validate *validator.Validate) {
	api := invitationApi{
		svc:      svc,
		validate: validate,
	}

	og := g.Group("/orgs/:id/invitations", jwt, adminMiddleware())
	og.POST("", api.create)
	og.POST("/bulk", api.bulkCreate)
	og.GET("", api.query)
	og.GET("/stats", api.stats)

	ig := g.Group("/invitations", jwt, adminMiddleware())
	ig.POST("/:id/resend", api.resend)
	ig.POST("/:id/cancel", api.cancel)

	// un-authed: the invitee redeems their emailed token on sign-up
	g.POST("/invitations/accept", api.accept)
}

func (api *invitationApi) create(ctx echo.Context) error {
	var data invite.NewInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}
	data.OrganizationID = ctx.Param("id")

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	inv, err := api.svc.Invite(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating invitation")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *invitationApi) bulkCreate(ctx echo.Context) error {
	var data invite.BulkInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkInvitation")
	}
	data.OrganizationID = ctx.Param("id")

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	result, err := api.svc.BulkInvite(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating invitations")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *invitationApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	invs, err := api.svc.QueryByOrg(ctx.Request().Context(), ctx.Param("id"), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying invitations")
	}
	if invs == nil {
		invs = []invite.Invitation{}
	}
	return ctx.JSON(http.StatusOK, invs)
}

func (api *invitationApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing invitation stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *invitationApi) resend(ctx echo.Context) error {
	inv, err := api.svc.Resend(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "resending invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *invitationApi) cancel(ctx echo.Context) error {
	inv, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *invitationApi) accept(ctx echo.Context) error {
	var data invite.AcceptInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AcceptInvitation")
	}

	inv, err := api.svc.Accept(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "accepting invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}
