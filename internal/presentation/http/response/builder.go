package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/atelier/pkg/errorbank"
)

// Builder renders the JSON envelope shared by the storefront, admin and
// webhook endpoints. Every envelope carries the request id when one was
// assigned.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	if b.err != nil {
		return b.buildError()
	}
	return b.buildSuccess()
}

func (b *Builder) buildSuccess() error {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.stampRequestID()
	payload := struct {
		Success bool           `json:"success"`
		Data    any            `json:"data,omitempty"`
		Meta    map[string]any `json:"meta,omitempty"`
	}{
		Success: true,
		Data:    b.data,
		Meta:    b.meta,
	}
	return b.ctx.JSON(b.status, payload)
}

func (b *Builder) buildError() error {
	appErr := fromError(b.err)
	b.stampRequestID()
	status := b.status
	if status < 400 {
		status = appErr.StatusCode()
	}
	payload := struct {
		Success bool `json:"success"`
		Error   struct {
			Kind    string         `json:"kind"`
			Message string         `json:"message"`
			Details map[string]any `json:"details,omitempty"`
		} `json:"error"`
		Meta map[string]any `json:"meta,omitempty"`
	}{
		Success: false,
		Meta:    b.meta,
	}
	payload.Error.Kind = string(appErr.Kind())
	payload.Error.Message = appErr.Message()
	payload.Error.Details = appErr.Details()

	return b.ctx.JSON(status, payload)
}

func (b *Builder) stampRequestID() {
	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("request_id", id)
	}
}

// fromError converts router errors (unknown route, wrong method, oversized
// body) into application errors so they share the envelope.
func fromError(err error) *errorbank.AppError {
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		return errorbank.From(err)
	}
	message := http.StatusText(httpErr.Code)
	if httpErr.Message != nil {
		message = fmt.Sprint(httpErr.Message)
	}
	switch {
	case httpErr.Code == http.StatusNotFound:
		return errorbank.NotFound(message, errorbank.WithCause(err))
	case httpErr.Code == http.StatusUnauthorized || httpErr.Code == http.StatusForbidden:
		return errorbank.Unauthorized(message, errorbank.WithCause(err))
	case httpErr.Code == http.StatusConflict:
		return errorbank.Conflict(message, errorbank.WithCause(err))
	case httpErr.Code == http.StatusUnprocessableEntity:
		return errorbank.Unprocessable(message, errorbank.WithCause(err))
	case httpErr.Code >= 400 && httpErr.Code < 500:
		return errorbank.BadRequest(message, errorbank.WithCause(err), errorbank.WithDetail("status", httpErr.Code))
	default:
		return errorbank.Internal(message, errorbank.WithCause(err))
	}
}
