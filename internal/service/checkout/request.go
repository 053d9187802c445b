package checkout

import (
	"errors"
	"strings"

	"github.com/Additional-Code/atelier/internal/entity"
	"github.com/Additional-Code/atelier/internal/validation"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

var (
	// ErrEmptyCart is returned for a checkout without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrValidation is returned for missing or malformed fields.
	ErrValidation = errors.New("invalid checkout request")
	// ErrDepositNotEligible is returned when a deposit is requested for a
	// product that cannot take one.
	ErrDepositNotEligible = errors.New("product is not eligible for deposit")
)

// LineItem is one cart row.
type LineItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// Customer holds contact details.
type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

// Request is a checkout submission.
type Request struct {
	Items         []LineItem           `json:"items" validate:"required,min=1,dive"`
	Customer      Customer             `json:"customer"`
	Shipping      entity.Address       `json:"shipping"`
	PaymentMethod entity.PaymentMethod `json:"payment_method" validate:"required,oneof=cod bank_transfer card"`
	PaymentMode   entity.PaymentMode   `json:"payment_mode" validate:"required,oneof=deposit full cod"`
	Note          string               `json:"note"`
}

// normalize trims input, validates the shape of the request and merges
// repeated products. It does not look at the catalog.
func (r Request) normalize(v *validation.Validator) (Request, error) {
	out := r
	out.Customer = Customer{
		Name:  strings.TrimSpace(r.Customer.Name),
		Email: strings.TrimSpace(r.Customer.Email),
		Phone: strings.TrimSpace(r.Customer.Phone),
	}
	out.Shipping.Line1 = strings.TrimSpace(r.Shipping.Line1)
	out.Shipping.City = strings.TrimSpace(r.Shipping.City)
	out.Shipping.Country = strings.TrimSpace(r.Shipping.Country)
	out.Note = strings.TrimSpace(r.Note)
	out.Items = make([]LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		out.Items = append(out.Items, LineItem{ProductID: strings.TrimSpace(item.ProductID), Quantity: item.Quantity})
	}

	if err := v.Check(out); err != nil {
		var fe *validation.FieldError
		if !errors.As(err, &fe) {
			return r, errorbank.Internal("failed to validate checkout request", errorbank.WithCause(err))
		}
		if fe.Field == "items" {
			return r, errorbank.BadRequest("cart is empty", errorbank.WithCause(ErrEmptyCart))
		}
		return r, invalid(fe.Field, fe.Error())
	}
	if out.PaymentMode == entity.PaymentModeCOD && out.PaymentMethod != entity.PaymentMethodCOD {
		return r, invalid("payment_method", "cod payment mode requires the cod payment method")
	}

	merged := make([]LineItem, 0, len(out.Items))
	index := make(map[string]int, len(out.Items))
	for _, item := range out.Items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	out.Items = merged
	return out, nil
}

func invalid(field, msg string) error {
	return errorbank.BadRequest(msg, errorbank.WithCause(ErrValidation), errorbank.WithDetail("field", field))
}
