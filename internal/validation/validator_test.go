package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/atelier/internal/validation"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

type line struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type contact struct {
	Email string `json:"email" validate:"required,email"`
}

type cart struct {
	Lines   []line  `json:"lines" validate:"required,min=1,dive"`
	Contact contact `json:"contact"`
	Mode    string  `json:"mode" validate:"required,oneof=deposit full"`
}

func validCart() cart {
	return cart{
		Lines:   []line{{SKU: "P1", Quantity: 1}},
		Contact: contact{Email: "linh@example.com"},
		Mode:    "full",
	}
}

func TestCheckNamesFieldsByJSONPath(t *testing.T) {
	v := validation.New()
	require.NoError(t, v.Check(validCart()))

	tests := []struct {
		name  string
		edit  func(c *cart)
		field string
		rule  string
	}{
		{name: "empty lines", edit: func(c *cart) { c.Lines = []line{} }, field: "lines", rule: "min"},
		{name: "nil lines", edit: func(c *cart) { c.Lines = nil }, field: "lines", rule: "required"},
		{name: "nested line", edit: func(c *cart) { c.Lines = append(c.Lines, line{SKU: "P2"}) }, field: "lines[1].quantity", rule: "gt"},
		{name: "bad email", edit: func(c *cart) { c.Contact.Email = "not-an-address" }, field: "contact.email", rule: "email"},
		{name: "unknown mode", edit: func(c *cart) { c.Mode = "cod" }, field: "mode", rule: "oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCart()
			tt.edit(&c)

			err := v.Check(c)
			var fe *validation.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.rule, fe.Rule)
			assert.Contains(t, fe.Error(), tt.field)
		})
	}
}

func TestValidateReturnsBadRequest(t *testing.T) {
	v := validation.New()
	c := validCart()
	c.Contact.Email = ""

	err := v.Validate(c)
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	app := errorbank.From(err)
	assert.Equal(t, "contact.email is required", app.Message())
	assert.Equal(t, "contact.email", app.Details()["field"])
	assert.Equal(t, "required", app.Details()["rule"])
}

func TestValidateRejectsNonStruct(t *testing.T) {
	err := validation.New().Validate("cart")
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))
}
