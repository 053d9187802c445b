package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/dto"
	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/presentation/http/response"
	"github.com/Additional-Code/atelier/internal/service/deposit"
	service "github.com/Additional-Code/atelier/internal/service/order"
	"github.com/Additional-Code/atelier/internal/service/payment"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/atelier/transport/http/admin")

// ActorHeader names the back-office user performing the request.
const ActorHeader = "X-Actor-ID"

const defaultActor = "admin"

// Handler exposes back-office order operations.
type Handler struct {
	orders   *service.Service
	deposits *deposit.Manager
	refunds  *payment.Refunds
	token    string
}

// NewHandler constructs an admin Handler.
func NewHandler(cfg config.Config, orders *service.Service, deposits *deposit.Manager, refunds *payment.Refunds) *Handler {
	return &Handler{orders: orders, deposits: deposits, refunds: refunds, token: cfg.Admin.Token}
}

// Register mounts the admin routes behind bearer token auth.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/admin", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return h.token != "" && subtle.ConstantTimeCompare([]byte(key), []byte(h.token)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return response.New(c).WithError(errorbank.Unauthorized("admin credentials required", errorbank.WithCause(err))).Build()
		},
	}))

	g.GET("/orders/:code", h.get)
	g.GET("/orders/:code/history", h.history)
	g.POST("/orders/:code/transitions", h.transition)
	g.POST("/orders/:code/collect", h.collect)

	g.POST("/orders/:code/deposit/received", h.markDeposit)
	g.POST("/orders/:code/deposit/expire", h.expire)
	g.POST("/orders/:code/deposit/cancel", h.cancelReservation)
	g.GET("/orders/:code/deposit-proofs", h.listProofs)
	g.POST("/orders/:code/deposit-proofs/:proof/review", h.reviewProof)

	g.GET("/orders/:code/refunds", h.listRefunds)
	g.POST("/orders/:code/refunds", h.refund)

	g.POST("/reservations/expire-overdue", h.expireOverdue)
}

func actor(c echo.Context) string {
	if a := c.Request().Header.Get(ActorHeader); a != "" {
		return a
	}
	return defaultActor
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "admin.getOrder", trace.WithAttributes(attribute.String("order.code", c.Param("code"))))
	defer span.End()

	order, err := h.orders.Get(ctx, c.Param("code"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) history(c echo.Context) error {
	b := response.New(c)
	entries, err := h.orders.History(c.Request().Context(), c.Param("code"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromHistory(entries)).Build()
}

func (h *Handler) transition(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Status string `json:"status" validate:"required"`
		Note   string `json:"note"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.transition", trace.WithAttributes(
		attribute.String("order.code", c.Param("code")),
		attribute.String("status.to", payload.Status),
	))
	defer span.End()

	order, err := h.orders.Transition(ctx, c.Param("code"), entity.OrderStatus(payload.Status), actor(c), payload.Note)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) collect(c echo.Context) error {
	b := response.New(c)
	order, err := h.orders.MarkCollected(c.Request().Context(), c.Param("code"), actor(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

type notePayload struct {
	Note string `json:"note"`
}

func (h *Handler) markDeposit(c echo.Context) error {
	b := response.New(c)
	var payload notePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	order, err := h.deposits.MarkDepositReceived(c.Request().Context(), c.Param("code"), deposit.Action{Actor: actor(c), Note: payload.Note})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) expire(c echo.Context) error {
	b := response.New(c)
	var payload notePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	order, err := h.deposits.Expire(c.Request().Context(), c.Param("code"), deposit.Action{Actor: actor(c), Note: payload.Note})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) cancelReservation(c echo.Context) error {
	b := response.New(c)
	var payload notePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	order, err := h.deposits.Cancel(c.Request().Context(), c.Param("code"), deposit.Action{Actor: actor(c), Note: payload.Note})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) listProofs(c echo.Context) error {
	b := response.New(c)
	proofs, err := h.deposits.ListProofs(c.Request().Context(), c.Param("code"))
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ProofResponse, 0, len(proofs))
	for i := range proofs {
		out = append(out, dto.FromProof(&proofs[i]))
	}
	return b.WithData(out).Build()
}

func (h *Handler) reviewProof(c echo.Context) error {
	b := response.New(c)

	proofID, err := uuid.Parse(c.Param("proof"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid proof id", errorbank.WithCause(err))).Build()
	}
	var payload struct {
		Approve *bool  `json:"approve" validate:"required"`
		Note    string `json:"note"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.reviewProof", trace.WithAttributes(
		attribute.String("order.code", c.Param("code")),
		attribute.String("proof.id", proofID.String()),
	))
	defer span.End()

	proof, order, err := h.deposits.ReviewProof(ctx, deposit.ProofReview{
		OrderCode: c.Param("code"),
		ProofID:   proofID,
		Approve:   *payload.Approve,
		Reviewer:  actor(c),
		Note:      payload.Note,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	data := map[string]any{"proof": dto.FromProof(proof)}
	if order != nil {
		data["order"] = dto.FromOrder(order)
	}
	return b.WithData(data).Build()
}

func (h *Handler) listRefunds(c echo.Context) error {
	b := response.New(c)
	refunds, err := h.refunds.Ledger(c.Request().Context(), c.Param("code"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromRefunds(refunds)).Build()
}

func (h *Handler) refund(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Amount int64  `json:"amount" validate:"gte=0"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.refund", trace.WithAttributes(
		attribute.String("order.code", c.Param("code")),
		attribute.Int64("refund.amount", payload.Amount),
	))
	defer span.End()

	receipt, err := h.refunds.Initiate(ctx, payment.RefundRequest{
		OrderCode: c.Param("code"),
		Amount:    payload.Amount,
		Reason:    payload.Reason,
		Actor:     actor(c),
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusAccepted).WithData(map[string]any{
		"order":     dto.FromOrder(receipt.Order),
		"refund":    dto.FromRefunds([]entity.Refund{*receipt.Refund})[0],
		"remaining": receipt.Remaining,
	}).Build()
}

func (h *Handler) expireOverdue(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Limit int `json:"limit" validate:"gte=0"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}
	result, err := h.deposits.ExpireOverdue(c.Request().Context(), payload.Limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{
		"scanned": result.Scanned,
		"expired": result.Expired,
		"failed":  result.Failed,
	}).Build()
}
