package tracking

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/Additional-Code/atelier/internal/database"
	"github.com/Additional-Code/atelier/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/atelier/repository/tracking")

var (
	// ErrNotFound is returned for unknown tokens.
	ErrNotFound = errors.New("tracking token not found")
	// ErrExpired is returned for tokens past their expiry.
	ErrExpired = errors.New("tracking token expired")
)

const tokenBytes = 24

// Repository issues and resolves order tracking tokens.
type Repository struct {
	writer *bun.DB
	now    func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a token for the order and returns its plaintext form. The
// plaintext is never stored.
func (r *Repository) Issue(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (string, error) {
	ctx, span := repoTracer.Start(ctx, "TrackingRepository.Issue")
	defer span.End()

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	now := r.now()
	row := &entity.TrackingToken{
		TokenHash: HashToken(token),
		OrderID:   orderID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if _, err := r.writer.NewInsert().Model(row).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return "", err
	}
	return token, nil
}

// Resolve returns the order the token was issued for.
func (r *Repository) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	ctx, span := repoTracer.Start(ctx, "TrackingRepository.Resolve")
	defer span.End()

	if token == "" {
		return uuid.Nil, ErrNotFound
	}
	row := new(entity.TrackingToken)
	err := r.writer.NewSelect().Model(row).Where("tt.token_hash = ?", HashToken(token)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return uuid.Nil, err
	}
	if !r.now().Before(row.ExpiresAt) {
		return uuid.Nil, ErrExpired
	}
	return row.OrderID, nil
}

// HashToken is the storage form of a tracking token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
