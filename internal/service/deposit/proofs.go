package deposit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/entity"
	orderrepo "github.com/Additional-Code/atelier/internal/repository/order"
	proofrepo "github.com/Additional-Code/atelier/internal/repository/proof"
	trackingrepo "github.com/Additional-Code/atelier/internal/repository/tracking"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

const maxProofImages = 5

// ErrProofNotAccepted is returned when the reservation cannot take a transfer proof.
var ErrProofNotAccepted = errors.New("reservation does not accept transfer proofs")

// ProofSubmission is a customer's transfer evidence.
type ProofSubmission struct {
	OrderCode string
	Token     string
	ImageRefs []string
	Note      string
}

// SubmitProof stores transfer evidence for a bank transfer reservation. The
// caller proves ownership with the order's tracking token.
func (m *Manager) SubmitProof(ctx context.Context, sub ProofSubmission) (*entity.DepositTransferProof, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.SubmitProof", trace.WithAttributes(attribute.String("order.code", sub.OrderCode)))
	defer span.End()

	refs := make([]string, 0, len(sub.ImageRefs))
	for _, ref := range sub.ImageRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 || len(refs) > maxProofImages {
		return nil, errorbank.BadRequest("between 1 and 5 image references are required",
			errorbank.WithDetail("field", "image_refs"))
	}

	order, err := m.owned(ctx, sub.OrderCode, sub.Token)
	if err != nil {
		return nil, err
	}
	if !order.IsDeposit() {
		return nil, errorbank.Unprocessable("order is not a deposit reservation", errorbank.WithCause(ErrNotReservation))
	}

	order, err = m.EnforceDueDate(ctx, order)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != entity.PaymentMethodBankTransfer ||
		order.PaymentStatus != entity.PaymentStatusDepositPending ||
		order.Status.Terminal() {
		return nil, errorbank.Conflict("reservation does not accept transfer proofs",
			errorbank.WithCause(ErrProofNotAccepted),
			errorbank.WithDetails(map[string]any{
				"status":         order.Status,
				"payment_status": order.PaymentStatus,
			}),
		)
	}

	proof := &entity.DepositTransferProof{
		ID:          uuid.New(),
		OrderID:     order.ID,
		ImageRefs:   refs,
		Note:        strings.TrimSpace(sub.Note),
		Status:      entity.ProofStatusPending,
		SubmittedAt: m.machine.Now(),
	}
	if err := m.proofs.Create(ctx, proof); err != nil {
		if errors.Is(err, proofrepo.ErrPendingExists) {
			return nil, errorbank.Conflict("a transfer proof is already awaiting review", errorbank.WithCause(err))
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to store transfer proof", errorbank.WithCause(err))
	}

	m.logger.Info("transfer proof submitted",
		zap.String("order_code", order.Code),
		zap.String("proof_id", proof.ID.String()),
		zap.Int("images", len(refs)),
	)
	return proof, nil
}

// ProofReview is an admin decision on a pending proof.
type ProofReview struct {
	OrderCode string
	ProofID   uuid.UUID
	Approve   bool
	Reviewer  string
	Note      string
}

// ReviewProof approves or rejects a pending proof. Approval marks the
// deposit received.
func (m *Manager) ReviewProof(ctx context.Context, review ProofReview) (*entity.DepositTransferProof, *entity.Order, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.ReviewProof", trace.WithAttributes(
		attribute.String("order.code", review.OrderCode),
		attribute.String("proof.id", review.ProofID.String()),
		attribute.Bool("proof.approve", review.Approve),
	))
	defer span.End()

	order, err := m.reservation(ctx, review.OrderCode)
	if err != nil {
		return nil, nil, err
	}

	proof, err := m.proofs.Get(ctx, review.ProofID)
	if err != nil {
		if errors.Is(err, proofrepo.ErrNotFound) {
			return nil, nil, errorbank.NotFound("transfer proof not found", errorbank.WithDetail("proof_id", review.ProofID))
		}
		return nil, nil, errorbank.Internal("failed to load transfer proof", errorbank.WithCause(err))
	}
	if proof.OrderID != order.ID {
		return nil, nil, errorbank.NotFound("transfer proof not found", errorbank.WithDetail("proof_id", review.ProofID))
	}
	if proof.Status != entity.ProofStatusPending {
		return nil, nil, errorbank.Conflict("transfer proof already reviewed",
			errorbank.WithCause(proofrepo.ErrAlreadyReviewed),
			errorbank.WithDetail("status", proof.Status),
		)
	}

	if review.Approve {
		if order.PaymentStatus == entity.PaymentStatusDeposited {
			return nil, nil, errorbank.Conflict("deposit already received", errorbank.WithCause(ErrAlreadyProcessed))
		}
		if order.Status.Terminal() {
			return nil, nil, errorbank.Conflict("reservation is closed",
				errorbank.WithCause(ErrAlreadyTerminal),
				errorbank.WithDetail("status", order.Status),
			)
		}
	}

	status := entity.ProofStatusRejected
	if review.Approve {
		status = entity.ProofStatusApproved
	}
	at := m.machine.Now()
	if err := m.proofs.Review(ctx, proof.ID, status, review.Reviewer, review.Note, at); err != nil {
		if errors.Is(err, proofrepo.ErrAlreadyReviewed) {
			return nil, nil, errorbank.Conflict("transfer proof already reviewed", errorbank.WithCause(err))
		}
		return nil, nil, errorbank.Internal("failed to review transfer proof", errorbank.WithCause(err))
	}
	proof.Status = status
	proof.ReviewedBy = review.Reviewer
	proof.ReviewedAt = &at
	proof.ReviewNote = review.Note

	if !review.Approve {
		m.logger.Info("transfer proof rejected", zap.String("order_code", order.Code), zap.String("reviewer", review.Reviewer))
		return proof, order, nil
	}

	updated, err := m.markReceived(ctx, order, Action{Actor: review.Reviewer, Note: "transfer proof approved"})
	if err != nil {
		if reopenErr := m.proofs.Reopen(ctx, proof.ID); reopenErr != nil {
			m.logger.Error("proof approved but deposit not recorded",
				zap.String("order_code", order.Code),
				zap.String("proof_id", proof.ID.String()),
				zap.Error(err),
				zap.NamedError("reopen_error", reopenErr),
			)
			return proof, nil, err
		}
		m.logger.Warn("deposit not recorded, proof back to pending",
			zap.String("order_code", order.Code),
			zap.String("proof_id", proof.ID.String()),
			zap.Error(err),
		)
		proof.Status = entity.ProofStatusPending
		proof.ReviewedBy = ""
		proof.ReviewedAt = nil
		proof.ReviewNote = ""
		return proof, nil, err
	}
	return proof, updated, nil
}

// ListProofs returns an order's proofs, newest first.
func (m *Manager) ListProofs(ctx context.Context, code string) ([]entity.DepositTransferProof, error) {
	order, err := m.reservation(ctx, code)
	if err != nil {
		return nil, err
	}
	proofs, err := m.proofs.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, errorbank.Internal("failed to list transfer proofs", errorbank.WithCause(err))
	}
	return proofs, nil
}

// owned loads the order named by code and checks the token was issued for it.
func (m *Manager) owned(ctx context.Context, code, token string) (*entity.Order, error) {
	orderID, err := m.tokens.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, trackingrepo.ErrNotFound) || errors.Is(err, trackingrepo.ErrExpired) {
			return nil, errorbank.Unauthorized("invalid or expired tracking token", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to resolve tracking token", errorbank.WithCause(err))
	}
	order, err := m.orders.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("code", code))
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if order.ID != orderID {
		return nil, errorbank.Unauthorized("tracking token does not match order")
	}
	return order, nil
}
