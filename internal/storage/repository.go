package storage

import (
	"context"
	"errors"

	"github.com/deviceops/reports-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned when the one-artifact-per-report rule is
	// violated at the storage layer.
	ErrConflict = errors.New("resource already exists")
)

// ReportsRepository persists device reports.
type ReportsRepository interface {
	Create(ctx context.Context, report *domain.DeviceReport) error
	Update(ctx context.Context, report *domain.DeviceReport) error
	Delete(ctx context.Context, reportID string) error
	WithID(ctx context.Context, reportID string) (*domain.DeviceReport, error)
	List(ctx context.Context, pagination domain.Pagination) ([]domain.DeviceReport, error)
}

// MediaRepository persists the structured artifact records.
type MediaRepository interface {
	Create(ctx context.Context, media *domain.ReportMedia) error
	Delete(ctx context.Context, mediaID string) error
	WithReportID(ctx context.Context, reportID string) (*domain.ReportMedia, error)
}
