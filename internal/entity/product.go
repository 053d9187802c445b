package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Product is a catalog entry together with its stock counter.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID                 string      `bun:"id,pk" json:"id"`
	Slug               string      `bun:"slug,unique,notnull" json:"slug"`
	Name               string      `bun:"name,notnull" json:"name"`
	ImageURL           string      `bun:"image_url" json:"image_url,omitempty"`
	Price              int64       `bun:"price,notnull" json:"price"`
	Stock              int         `bun:"stock,notnull" json:"stock"`
	Active             bool        `bun:"active,notnull" json:"active"`
	AllowsDeposit      bool        `bun:"allows_deposit,notnull" json:"allows_deposit"`
	DepositType        DepositType `bun:"deposit_type" json:"deposit_type,omitempty"`
	DepositPercentage  float64     `bun:"deposit_percentage,notnull" json:"deposit_percentage"`
	DepositFixedAmount int64       `bun:"deposit_fixed_amount,notnull" json:"deposit_fixed_amount"`
	DepositDueHours    int         `bun:"deposit_due_hours,notnull" json:"deposit_due_hours"`
	CreatedAt          time.Time   `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time   `bun:"updated_at,nullzero" json:"updated_at"`
}

// DepositConfigured reports whether the product carries a usable deposit
// setting: a percentage in (0, 100] or a positive fixed amount.
func (p *Product) DepositConfigured() bool {
	switch p.DepositType {
	case DepositTypePercent:
		return p.DepositPercentage > 0 && p.DepositPercentage <= 100
	case DepositTypeFixed:
		return p.DepositFixedAmount > 0
	default:
		return false
	}
}
