package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wardroberry/wardroberry/internal/api/domain"
	"github.com/wardroberry/wardroberry/internal/api/model"
	"github.com/wardroberry/wardroberry/shared/postgresql"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateGarment inserts the status record the processing pipeline will drive.
// Exactly one record exists per garment for its entire lifetime.
func (s *Storage) CreateGarment(ctx context.Context, garment *model.Garment) error {
	query := `
		INSERT INTO garments (
			id, user_id, file_name, original_image_url,
			processing_status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		garment.ID,
		garment.UserID,
		garment.FileName,
		garment.OriginalImageURL,
		garment.ProcessingStatus,
		garment.CreatedAt,
		garment.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create garment: %w", err)
	}

	return nil
}

func (s *Storage) GetGarmentByID(ctx context.Context, garmentID string) (*model.Garment, error) {
	var garment model.Garment
	query := `
		SELECT
			id, user_id, file_name, original_image_url, processed_image_url,
			category, color, style, season, material, occasion, confidence,
			processing_status, error_message, created_at, updated_at
		FROM garments
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &garment, query, garmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrGarmentNotFound
		}
		return nil, fmt.Errorf("failed to get garment: %w", err)
	}

	return &garment, nil
}

func (s *Storage) DeleteGarment(ctx context.Context, garmentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM garments WHERE id = $1`, garmentID)
	if err != nil {
		return fmt.Errorf("failed to delete garment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrGarmentNotFound
	}

	return nil
}

type GarmentFilter struct {
	UserID   string
	Status   string
	Category string
	PageSize int
	Cursor   *GarmentCursor
}

type GarmentCursor struct {
	CreatedAt time.Time
	GarmentID string
}

func (s *Storage) ListGarments(ctx context.Context, filter GarmentFilter) ([]model.Garment, error) {
	query := `
		SELECT
			id, user_id, file_name, original_image_url, processed_image_url,
			category, color, style, season, material, occasion, confidence,
			processing_status, error_message, created_at, updated_at
		FROM garments
		WHERE user_id = $1
	`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND processing_status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, filter.Category)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.GarmentID)
		argIdx += 2
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var garments []model.Garment
	err := s.db.SelectContext(ctx, &garments, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list garments: %w", err)
	}

	return garments, nil
}
