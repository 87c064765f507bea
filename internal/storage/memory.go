package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/deviceops/reports-back/internal/domain"
)

// MemoryReportsRepository stores reports in memory for local development.
type MemoryReportsRepository struct {
	mu      sync.RWMutex
	reports map[string]*domain.DeviceReport
}

func NewMemoryReportsRepository() *MemoryReportsRepository {
	return &MemoryReportsRepository{reports: make(map[string]*domain.DeviceReport)}
}

func (r *MemoryReportsRepository) Create(_ context.Context, report *domain.DeviceReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *report
	r.reports[report.ID] = &clone
	return nil
}

func (r *MemoryReportsRepository) Update(_ context.Context, report *domain.DeviceReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[report.ID]; !ok {
		return ErrNotFound
	}
	clone := *report
	r.reports[report.ID] = &clone
	return nil
}

func (r *MemoryReportsRepository) Delete(_ context.Context, reportID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[reportID]; !ok {
		return ErrNotFound
	}
	delete(r.reports, reportID)
	return nil
}

func (r *MemoryReportsRepository) WithID(_ context.Context, reportID string) (*domain.DeviceReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *report
	return &clone, nil
}

func (r *MemoryReportsRepository) List(
	_ context.Context,
	pagination domain.Pagination,
) ([]domain.DeviceReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.DeviceReport, 0, len(r.reports))
	for _, report := range r.reports {
		items = append(items, *report)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	start := pagination.Offset()
	if start >= len(items) {
		return []domain.DeviceReport{}, nil
	}
	end := start + pagination.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

// MemoryMediaRepository stores artifact records in memory, enforcing the
// one-artifact-per-report rule the way the Postgres unique index does.
type MemoryMediaRepository struct {
	mu       sync.RWMutex
	byReport map[string]*domain.ReportMedia
}

func NewMemoryMediaRepository() *MemoryMediaRepository {
	return &MemoryMediaRepository{byReport: make(map[string]*domain.ReportMedia)}
}

func (r *MemoryMediaRepository) Create(_ context.Context, media *domain.ReportMedia) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byReport[media.ReportID]; ok {
		return ErrConflict
	}
	clone := *media
	r.byReport[media.ReportID] = &clone
	return nil
}

func (r *MemoryMediaRepository) Delete(_ context.Context, mediaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for reportID, media := range r.byReport {
		if media.ID == mediaID {
			delete(r.byReport, reportID)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryMediaRepository) WithReportID(
	_ context.Context,
	reportID string,
) (*domain.ReportMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	media, ok := r.byReport[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *media
	return &clone, nil
}
