package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/atelier/internal/dto"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/presentation/http/response"
	"github.com/Additional-Code/atelier/internal/service/checkout"
	"github.com/Additional-Code/atelier/internal/service/deposit"
	service "github.com/Additional-Code/atelier/internal/service/order"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/atelier/transport/http/order")

// TokenHeader carries the tracking token when it is not in the query string.
const TokenHeader = "X-Tracking-Token"

// Handler exposes the customer facing order endpoints over HTTP.
type Handler struct {
	checkout *checkout.Orchestrator
	orders   *service.Service
	deposits *deposit.Manager
}

// NewHandler constructs an order Handler.
func NewHandler(co *checkout.Orchestrator, svc *service.Service, deposits *deposit.Manager) *Handler {
	return &Handler{checkout: co, orders: svc, deposits: deposits}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/checkout", h.placeOrder)

	g := e.Group("/orders")
	g.GET("/track", h.track)
	g.POST("/:code/cancel", h.cancel)
	g.POST("/:code/deposit-proofs", h.submitProof)
}

func (h *Handler) placeOrder(c echo.Context) error {
	b := response.New(c)

	var payload dto.CheckoutRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	req := checkout.Request{
		Customer: checkout.Customer{
			Name:  payload.Customer.Name,
			Email: payload.Customer.Email,
			Phone: payload.Customer.Phone,
		},
		Shipping:      entity.Address(payload.Shipping),
		PaymentMethod: entity.PaymentMethod(payload.PaymentMethod),
		PaymentMode:   entity.PaymentMode(payload.PaymentMode),
		Note:          payload.Note,
	}
	for _, it := range payload.Items {
		req.Items = append(req.Items, checkout.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.checkout", trace.WithAttributes(
		attribute.Int("cart.lines", len(req.Items)),
		attribute.String("payment.mode", payload.PaymentMode),
	))
	defer span.End()

	result, err := h.checkout.PlaceOrder(ctx, req)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.CheckoutResponse{
		Order:         dto.FromOrder(result.Order),
		TrackingToken: result.TrackingToken,
		PayNow:        result.PayNow,
		TransferMemo:  result.TransferMemo,
		ClientSecret:  result.ClientSecret,
	}).Build()
}

func (h *Handler) track(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.track")
	defer span.End()

	tracked, err := h.orders.Track(ctx, token(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.TrackingResponse{
		Order:   dto.FromOrder(tracked.Order),
		History: dto.FromHistory(tracked.History),
	}).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)
	code := c.Param("code")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := h.orders.CancelAbandoned(ctx, code, token(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) submitProof(c echo.Context) error {
	b := response.New(c)
	code := c.Param("code")

	var payload struct {
		ImageRefs []string `json:"image_refs" validate:"required,min=1,dive,required"`
		Note      string   `json:"note"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.submitProof", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	proof, err := h.deposits.SubmitProof(ctx, deposit.ProofSubmission{
		OrderCode: code,
		Token:     token(c),
		ImageRefs: payload.ImageRefs,
		Note:      payload.Note,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromProof(proof)).Build()
}

func token(c echo.Context) string {
	if t := c.QueryParam("token"); t != "" {
		return t
	}
	return c.Request().Header.Get(TokenHeader)
}
