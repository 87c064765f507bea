package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deviceops/reports-back/internal/domain"
)

const uniqueViolationCode = "23505"

type PostgresMediaRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMediaRepository(pool *pgxpool.Pool) *PostgresMediaRepository {
	return &PostgresMediaRepository{pool: pool}
}

func (r *PostgresMediaRepository) Create(ctx context.Context, media *domain.ReportMedia) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO report_media (
			media_id,
			report_id,
			uploaded_by,
			uploaded_at,
			file_size,
			content_type
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		media.ID,
		media.ReportID,
		media.UploadedBy,
		media.UploadedAt,
		media.Metadata.FileSize,
		media.Metadata.ContentType,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrConflict
		}
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (r *PostgresMediaRepository) Delete(ctx context.Context, mediaID string) error {
	command, err := r.pool.Exec(ctx, `DELETE FROM report_media WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresMediaRepository) WithReportID(
	ctx context.Context,
	reportID string,
) (*domain.ReportMedia, error) {
	var (
		media      domain.ReportMedia
		uploadedAt time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT media_id, report_id, uploaded_by, uploaded_at, file_size, content_type
		FROM report_media
		WHERE report_id = $1
	`, reportID).Scan(
		&media.ID,
		&media.ReportID,
		&media.UploadedBy,
		&uploadedAt,
		&media.Metadata.FileSize,
		&media.Metadata.ContentType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query media: %w", err)
	}

	media.UploadedAt = uploadedAt
	return &media, nil
}
