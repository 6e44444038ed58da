package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/billing"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
)

type organizationApi struct {
	svc      organization.Service
	licSvc   license.Service
	calc     *billing.Calculator
	validate *validator.Validate
}

func registerOrganizationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc organization.Service,
	licSvc license.Service,
	calc *billing.Calculator,
	validate *validator.Validate,
) {
	api := organizationApi{
		svc:      svc,
		licSvc:   licSvc,
		calc:     calc,
		validate: validate,
	}

	og := g.Group("/orgs/:id", jwt)
	og.POST("/subscriptions", api.createSubscription, adminMiddleware())
	og.GET("/subscriptions", api.querySubscriptions)
	og.GET("/seat-usage", api.seatUsage)
	og.GET("/invoice-preview", api.invoicePreview)

	sg := g.Group("/subscriptions/:id", jwt)
	sg.GET("", api.retrieveSubscription)
	sg.PUT("/status", api.changeStatus, adminMiddleware())
}

func (api *organizationApi) createSubscription(ctx echo.Context) error {
	var data organization.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	data.OrganizationID = ctx.Param("id")

	sub, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subscription")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *organizationApi) querySubscriptions(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	subs, err := api.svc.QueryByOrg(ctx.Request().Context(), ctx.Param("id"), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []organization.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *organizationApi) retrieveSubscription(ctx echo.Context) error {
	sub, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding subscription by ID")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *organizationApi) changeStatus(ctx echo.Context) error {
	var data StatusChangeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChangeRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	sub, err := api.svc.ChangeStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "changing subscription status")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *organizationApi) seatUsage(ctx echo.Context) error {
	usage, err := api.licSvc.SeatUsage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing seat usage")
	}
	return ctx.JSON(http.StatusOK, usage)
}

func (api *organizationApi) invoicePreview(ctx echo.Context) error {
	subs, err := api.svc.QueryByOrg(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}

	lines := []billing.InvoiceLine{}
	var total float64
	for _, sub := range subs {
		if !sub.CountsForSeats() {
			continue
		}
		for _, line := range api.calc.InvoiceLines(sub.PlanName, sub.TotalSeats, sub.PricePerSeat, sub.DiscountPercentage) {
			lines = append(lines, line)
			total += line.Amount
		}
	}
	total = billing.RoundMoney(total)

	return ctx.JSON(http.StatusOK, InvoicePreviewResponse{
		Lines:        lines,
		Total:        total,
		TotalDisplay: billing.FormatINR(total),
	})
}

type (
	StatusChangeRequest struct {
		Status string `json:"status" validate:"required,oneof=pending active grace_period expired cancelled"`
	}

	InvoicePreviewResponse struct {
		Lines        []billing.InvoiceLine `json:"lines"`
		Total        float64               `json:"total"`
		TotalDisplay string                `json:"total_display"`
	}
)
