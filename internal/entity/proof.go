package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DepositTransferProof is customer evidence of a manual bank transfer.
type DepositTransferProof struct {
	bun.BaseModel `bun:"table:deposit_proofs,alias:dp"`

	ID          uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	OrderID     uuid.UUID   `bun:"order_id,type:uuid,notnull" json:"order_id"`
	ImageRefs   []string    `bun:"image_refs,type:jsonb" json:"image_refs"`
	Note        string      `bun:"note" json:"note,omitempty"`
	Status      ProofStatus `bun:"status,notnull" json:"status"`
	SubmittedAt time.Time   `bun:"submitted_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"submitted_at"`
	ReviewedBy  string      `bun:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time  `bun:"reviewed_at,nullzero" json:"reviewed_at,omitempty"`
	ReviewNote  string      `bun:"review_note" json:"review_note,omitempty"`
}

// TrackingToken authorises unauthenticated order lookups. Only the SHA-256
// hash of the token is stored.
type TrackingToken struct {
	bun.BaseModel `bun:"table:tracking_tokens,alias:tt"`

	TokenHash string    `bun:"token_hash,pk" json:"-"`
	OrderID   uuid.UUID `bun:"order_id,type:uuid,notnull" json:"order_id"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}
