package proof

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/atelier/repository/proof")

var (
	// ErrNotFound is returned when a proof is missing.
	ErrNotFound = errors.New("deposit proof not found")
	// ErrPendingExists is returned when the order already has a proof awaiting review.
	ErrPendingExists = errors.New("a deposit proof is already pending review")
	// ErrAlreadyReviewed is returned when the proof left pending before the review landed.
	ErrAlreadyReviewed = errors.New("deposit proof already reviewed")
)

// Repository persists bank transfer proofs.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create stores a new pending proof. At most one proof per order may be
// pending; the partial unique index enforces the same rule under races.
func (r *Repository) Create(ctx context.Context, proof *entity.DepositTransferProof) error {
	ctx, span := repoTracer.Start(ctx, "ProofRepository.Create", trace.WithAttributes(attribute.String("order.id", proof.OrderID.String())))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pending, err := tx.NewSelect().Model((*entity.DepositTransferProof)(nil)).
			Where("order_id = ?", proof.OrderID).
			Where("status = ?", entity.ProofStatusPending).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check pending proof: %w", err)
		}
		if pending {
			return ErrPendingExists
		}
		if _, err := tx.NewInsert().Model(proof).Exec(ctx); err != nil {
			return fmt.Errorf("insert proof: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
	}
	return err
}

// Get loads a proof by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*entity.DepositTransferProof, error) {
	ctx, span := repoTracer.Start(ctx, "ProofRepository.Get", trace.WithAttributes(attribute.String("proof.id", id.String())))
	defer span.End()

	proof := new(entity.DepositTransferProof)
	err := r.writer.NewSelect().Model(proof).Where("dp.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return proof, nil
}

// ListByOrder returns every proof submitted for the order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.DepositTransferProof, error) {
	ctx, span := repoTracer.Start(ctx, "ProofRepository.ListByOrder")
	defer span.End()

	var rows []entity.DepositTransferProof
	err := r.reader.NewSelect().Model(&rows).Where("dp.order_id = ?", orderID).OrderExpr("dp.submitted_at DESC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// Review moves a pending proof to approved or rejected.
func (r *Repository) Review(ctx context.Context, id uuid.UUID, status entity.ProofStatus, reviewer, note string, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "ProofRepository.Review", trace.WithAttributes(
		attribute.String("proof.id", id.String()),
		attribute.String("proof.status", string(status)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.DepositTransferProof)(nil)).
		Set("status = ?", status).
		Set("reviewed_by = ?", reviewer).
		Set("reviewed_at = ?", at).
		Set("review_note = ?", note).
		Where("id = ?", id).
		Where("status = ?", entity.ProofStatusPending).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyReviewed
	}
	return nil
}

// Reopen puts an approved proof back to pending and clears the review. It
// fails with ErrAlreadyReviewed when the proof is not approved.
func (r *Repository) Reopen(ctx context.Context, id uuid.UUID) error {
	ctx, span := repoTracer.Start(ctx, "ProofRepository.Reopen", trace.WithAttributes(attribute.String("proof.id", id.String())))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.DepositTransferProof)(nil)).
		Set("status = ?", entity.ProofStatusPending).
		Set("reviewed_by = NULL").
		Set("reviewed_at = NULL").
		Set("review_note = NULL").
		Where("id = ?", id).
		Where("status = ?", entity.ProofStatusApproved).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyReviewed
	}
	return nil
}
