package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/db/migrations"
	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/internal/database"
)

const migrationsDir = migrations.Dir

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// Migrator applies the embedded schema migrations with goose.
type Migrator struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a goose-backed migrator.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	if err := goose.SetDialect(dialect); err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrations.FS)

	return &Migrator{
		db:     conns.Writer,
		logger: logger,
	}, nil
}

// Schema is the order store's migration state.
type Schema struct {
	Current int64
	Latest  int64
	Pending []int64
}

// UpToDate reports whether every embedded migration has been applied.
func (s Schema) UpToDate() bool {
	return len(s.Pending) == 0
}

// Schema reads the applied version and lists embedded migrations not yet run.
func (m *Migrator) Schema(ctx context.Context) (Schema, error) {
	current, err := goose.GetDBVersionContext(ctx, m.db.DB)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema version: %w", err)
	}
	all, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil && !isNoMigrationErr(err) {
		return Schema{}, fmt.Errorf("collect migrations: %w", err)
	}

	schema := Schema{Current: current, Latest: current}
	for _, mg := range all {
		if mg.Version > schema.Latest {
			schema.Latest = mg.Version
		}
		if mg.Version > current {
			schema.Pending = append(schema.Pending, mg.Version)
		}
	}
	return schema, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	before, err := m.Schema(ctx)
	if err != nil {
		return err
	}
	if before.UpToDate() {
		m.logger.Info("order schema up to date", zap.Int64("version", before.Current))

		return nil
	}

	if err := goose.UpContext(ctx, m.db.DB, migrationsDir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return fmt.Errorf("migrate from version %d: %w", before.Current, err)
	}

	m.logger.Info("order schema migrated",
		zap.Int64("from", before.Current),
		zap.Int64("to", before.Latest),
		zap.Int64s("applied", before.Pending),
	)

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		if err := goose.DownToContext(ctx, m.db.DB, migrationsDir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db.DB, migrationsDir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

// Status prints goose's per-file table and returns the schema summary.
func (m *Migrator) Status(ctx context.Context) (Schema, error) {
	if err := goose.StatusContext(ctx, m.db.DB, migrationsDir); err != nil {
		return Schema{}, err
	}
	schema, err := m.Schema(ctx)
	if err != nil {
		return Schema{}, err
	}
	if !schema.UpToDate() {
		m.logger.Warn("order schema behind binary",
			zap.Int64("version", schema.Current),
			zap.Int64("latest", schema.Latest),
			zap.Int64s("pending", schema.Pending),
		)
	}
	return schema, nil
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "postgres", "pg":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
