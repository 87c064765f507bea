package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deviceops/reports-back/internal/domain"
)

type PostgresReportsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresReportsRepository(pool *pgxpool.Pool) *PostgresReportsRepository {
	return &PostgresReportsRepository{pool: pool}
}

func (r *PostgresReportsRepository) Create(ctx context.Context, report *domain.DeviceReport) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO device_report (
			report_id,
			report_name,
			creator_id,
			comment,
			created_at,
			device_id,
			device_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		report.ID,
		report.ReportName,
		report.CreatorID,
		report.Comment,
		report.CreatedAt,
		report.DeviceID,
		string(report.DeviceType),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *PostgresReportsRepository) Update(ctx context.Context, report *domain.DeviceReport) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE device_report
		SET report_name = $2,
			comment = $3
		WHERE report_id = $1
	`, report.ID, report.ReportName, report.Comment)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReportsRepository) Delete(ctx context.Context, reportID string) error {
	command, err := r.pool.Exec(ctx, `DELETE FROM device_report WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresReportsRepository) WithID(
	ctx context.Context,
	reportID string,
) (*domain.DeviceReport, error) {
	var (
		report     domain.DeviceReport
		deviceType string
		createdAt  time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT report_id, report_name, creator_id, comment, created_at, device_id, device_type
		FROM device_report
		WHERE report_id = $1
	`, reportID).Scan(
		&report.ID,
		&report.ReportName,
		&report.CreatorID,
		&report.Comment,
		&createdAt,
		&report.DeviceID,
		&deviceType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}

	report.DeviceType = domain.DeviceType(deviceType)
	report.CreatedAt = createdAt
	return &report, nil
}

func (r *PostgresReportsRepository) List(
	ctx context.Context,
	pagination domain.Pagination,
) ([]domain.DeviceReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT report_id, report_name, creator_id, comment, created_at, device_id, device_type
		FROM device_report
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]domain.DeviceReport, 0)
	for rows.Next() {
		var (
			report     domain.DeviceReport
			deviceType string
		)
		if err := rows.Scan(
			&report.ID,
			&report.ReportName,
			&report.CreatorID,
			&report.Comment,
			&report.CreatedAt,
			&report.DeviceID,
			&deviceType,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		report.DeviceType = domain.DeviceType(deviceType)
		items = append(items, report)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reports: %w", rows.Err())
	}
	return items, nil
}
