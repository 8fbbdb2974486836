package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/wardroberry/wardroberry/internal/worker/domain"
)

// Storage is the worker's view of the garment status store. It only mutates
// the status fields of an existing record; creation and deletion belong to
// the API side.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// SetProcessing transitions the garment's record to processing.
func (s *Storage) SetProcessing(ctx context.Context, garmentID string) error {
	query := `
		UPDATE garments
		SET processing_status = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	return s.exec(ctx, query, garmentID, domain.StatusProcessing, garmentID)
}

// SetCompleted transitions the record to completed, persisting the processed
// asset reference and all classification attributes and clearing any prior
// error message.
func (s *Storage) SetCompleted(ctx context.Context, garmentID, assetRef string, attrs *domain.Attributes) error {
	query := `
		UPDATE garments
		SET processing_status = $1,
		    processed_image_url = $2,
		    category = $3,
		    color = $4,
		    style = $5,
		    season = $6,
		    material = $7,
		    occasion = $8,
		    confidence = $9,
		    error_message = '',
		    updated_at = NOW()
		WHERE id = $10
	`

	return s.exec(ctx, query, garmentID,
		domain.StatusCompleted,
		assetRef,
		attrs.Category,
		attrs.Color,
		attrs.Style,
		attrs.Season,
		attrs.Material,
		attrs.Occasion,
		attrs.Confidence,
		garmentID,
	)
}

// SetFailed transitions the record to failed with a human-readable error
// message. Attributes from any earlier successful run are left untouched.
func (s *Storage) SetFailed(ctx context.Context, garmentID, errorMessage string) error {
	query := `
		UPDATE garments
		SET processing_status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $3
	`

	return s.exec(ctx, query, garmentID, domain.StatusFailed, errorMessage, garmentID)
}

// GetProcessingStatus reads back the garment's current status, rejecting
// unknown values at the store boundary.
func (s *Storage) GetProcessingStatus(ctx context.Context, garmentID string) (domain.ProcessingStatus, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT processing_status FROM garments WHERE id = $1`, garmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrGarmentNotFound
		}
		return "", fmt.Errorf("failed to get processing status: %w", err)
	}

	return domain.ParseProcessingStatus(raw)
}

// HealthCheck verifies the status store is reachable.
func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("status store health check failed: %w", err)
	}
	return nil
}

func (s *Storage) exec(ctx context.Context, query, garmentID string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update garment %s: %w", garmentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrGarmentNotFound
	}

	s.logger.Debug("Garment status updated",
		slog.String("garment_id", garmentID),
	)

	return nil
}
