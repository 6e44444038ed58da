package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/billing"
)

type billingApi struct {
	calc     *billing.Calculator
	validate *validator.Validate
}

func registerBillingAPI(g *echo.Group, calc *billing.Calculator, validate *validator.Validate) {
	api := billingApi{
		calc:     calc,
		validate: validate,
	}

	// un-authed: feeds the public pricing widget
	g.POST("/billing/quote", api.quote)
}

func (api *billingApi) quote(ctx echo.Context) error {
	var data QuoteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuoteRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	quote := api.calc.Quote(data.BasePrice, data.SeatCount)
	return ctx.JSON(http.StatusOK, QuoteResponse{
		Quote:         quote,
		AmountDisplay: billing.FormatINR(quote.FinalAmount),
	})
}

type (
	QuoteRequest struct {
		BasePrice float64 `json:"base_price" validate:"gte=0"`
		SeatCount int     `json:"seat_count" validate:"gte=0,lte=10000"`
	}

	QuoteResponse struct {
		billing.Quote
		AmountDisplay string `json:"amount_display"`
	}
)
