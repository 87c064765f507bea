package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/objstore"
	"github.com/deviceops/reports-back/internal/storage"
)

// PDFGenerator turns an inventory read model into artifact bytes plus
// metadata. It is side-effect free.
type PDFGenerator interface {
	Generate(device domain.DeviceInfo) ([]byte, domain.MediaMetadata, error)
}

// GenerateService is the idempotency and orchestration command for artifact
// generation.
type GenerateService struct {
	reports    storage.ReportsRepository
	media      storage.MediaRepository
	devices    DeviceGateway
	generator  PDFGenerator
	objects    objstore.Gateway
	dispatcher *Dispatcher
	logger     *log.Logger
}

func NewGenerateService(
	reports storage.ReportsRepository,
	media storage.MediaRepository,
	devices DeviceGateway,
	generator PDFGenerator,
	objects objstore.Gateway,
	dispatcher *Dispatcher,
	logger *log.Logger,
) *GenerateService {
	return &GenerateService{
		reports:    reports,
		media:      media,
		devices:    devices,
		generator:  generator,
		objects:    objects,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// GeneratePDFReport produces and persists the artifact for one report and
// returns its stable file handle. Preconditions, in order: no artifact may
// exist yet (Conflict), the report must exist (NotFound), the device must be
// known to the inventory system (NotFound). The existence check and the
// record insert are not atomic across concurrent invocations; the unique
// index on report_id closes that window at the storage layer.
func (s *GenerateService) GeneratePDFReport(ctx context.Context, reportID string) (string, error) {
	if _, err := s.media.WithReportID(ctx, reportID); err == nil {
		return "", domain.NewConflict("media for report %s already exists", reportID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("check existing media: %w", err)
	}

	report, err := s.reports.WithID(ctx, reportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", domain.NewNotFound("report with id %s not found", reportID)
		}
		return "", fmt.Errorf("load report: %w", err)
	}

	device, err := s.devices.Load(ctx, report.DeviceID, report.DeviceType)
	if err != nil {
		return "", err
	}
	if device == nil {
		return "", domain.NewNotFound(
			"device with id %d and type %s not found", report.DeviceID, report.DeviceType,
		)
	}

	file, metadata, err := s.generator.Generate(*device)
	if err != nil {
		return "", fmt.Errorf("generate pdf: %w", err)
	}

	media := &domain.ReportMedia{
		ID:         domain.NewID(),
		ReportID:   reportID,
		UploadedBy: report.CreatorID,
		UploadedAt: time.Now().UTC(),
		Metadata:   metadata,
	}
	fileName := domain.BuildFileName(media.ID, metadata.ContentType)

	accumulator := domain.NewAccumulator()
	accumulator.Add(domain.ReportMediaGenerated{
		MediaID:    media.ID,
		ReportID:   media.ReportID,
		UploadedBy: media.UploadedBy,
		Metadata:   media.Metadata,
	})

	if err := s.media.Create(ctx, media); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return "", domain.NewConflict("media for report %s already exists", reportID)
		}
		return "", fmt.Errorf("insert media record: %w", err)
	}

	// The record is committed; the signal may surface while the object
	// write below is still in flight.
	s.dispatcher.Dispatch(ctx, accumulator.Drain())

	if err := s.objects.Save(ctx, fileName, file); err != nil {
		return "", fmt.Errorf("store artifact bytes: %w", err)
	}

	if s.logger != nil {
		s.logger.Printf(
			"pdf report generated report_id=%s media_id=%s size=%d",
			reportID, media.ID, metadata.FileSize,
		)
	}
	return fileName, nil
}
