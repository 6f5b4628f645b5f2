package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/security"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// GormStorage implements core.Journal using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.Journal = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed journal.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the journal is backed by SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Invocation{})
}

// Start records a running invocation.
func (s *GormStorage) Start(ctx context.Context, inv *core.Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = core.StatusRunning
	}
	if inv.StartedAt.IsZero() {
		inv.StartedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(inv).Error
}

// Finish stores the outcome of a running invocation.
// Error messages are sanitized before storage.
func (s *GormStorage) Finish(ctx context.Context, id string, outcome core.Outcome) error {
	if outcome.Status != core.StatusSucceeded && outcome.Status != core.StatusFailed {
		return fmt.Errorf("finish %s: status %q is not final", id, outcome.Status)
	}

	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Invocation{}).
		Where("id = ? AND status = ?", id, core.StatusRunning).
		Updates(map[string]any{
			"status":       outcome.Status,
			"result":       outcome.Result,
			"error":        security.SanitizeErrorMessage(outcome.Error),
			"exit_code":    outcome.ExitCode,
			"duration_ms":  outcome.Duration.Milliseconds(),
			"completed_at": now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("finish %s: %w", id, core.ErrInvocationNotFound)
	}
	return nil
}

// Get retrieves an invocation by ID.
func (s *GormStorage) Get(ctx context.Context, id string) (*core.Invocation, error) {
	var inv core.Invocation
	err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, core.ErrInvocationNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// List returns invocations matching filter, most recent first.
func (s *GormStorage) List(ctx context.Context, filter core.InvocationFilter) ([]*core.Invocation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := s.db.WithContext(ctx).Model(&core.Invocation{})
	if filter.Target != "" {
		query = query.Where("target = ?", filter.Target)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var invocations []*core.Invocation
	err := query.
		Order("started_at DESC, id ASC").
		Limit(limit).
		Find(&invocations).Error
	return invocations, err
}

// Prune deletes finished invocations started before the cutoff. Running
// invocations are never removed.
func (s *GormStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ?", []core.InvocationStatus{core.StatusSucceeded, core.StatusFailed}).
		Where("started_at < ?", before).
		Delete(&core.Invocation{})
	return result.RowsAffected, result.Error
}
