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

// DeviceGateway is the session-scoped inventory lookup. A nil DeviceInfo
// with nil error means the device is unknown.
type DeviceGateway interface {
	Load(ctx context.Context, deviceID int, deviceType domain.DeviceType) (*domain.DeviceInfo, error)
}

// ReportsService implements the report command and query surface.
type ReportsService struct {
	reports    storage.ReportsRepository
	media      storage.MediaRepository
	devices    DeviceGateway
	objects    objstore.Gateway
	dispatcher *Dispatcher
	logger     *log.Logger
}

func NewReportsService(
	reports storage.ReportsRepository,
	media storage.MediaRepository,
	devices DeviceGateway,
	objects objstore.Gateway,
	dispatcher *Dispatcher,
	logger *log.Logger,
) *ReportsService {
	return &ReportsService{
		reports:    reports,
		media:      media,
		devices:    devices,
		objects:    objects,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Create files a new device report. The referenced device must exist in the
// inventory system; the check is part of creation, not of PDF generation.
func (s *ReportsService) Create(
	ctx context.Context,
	creatorID string,
	reportName string,
	comment string,
	deviceID int,
	deviceType domain.DeviceType,
) (string, error) {
	device, err := s.devices.Load(ctx, deviceID, deviceType)
	if err != nil {
		return "", err
	}
	if device == nil {
		return "", domain.NewNotFound("device with id %d and type %s not found", deviceID, deviceType)
	}

	report := &domain.DeviceReport{
		ID:         domain.NewID(),
		ReportName: reportName,
		Comment:    comment,
		CreatorID:  creatorID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		CreatedAt:  time.Now().UTC(),
	}

	accumulator := domain.NewAccumulator()
	accumulator.Add(domain.DeviceReportCreated{
		ReportID:   report.ID,
		ReportName: report.ReportName,
		Comment:    report.Comment,
		CreatorID:  report.CreatorID,
		DeviceID:   report.DeviceID,
		DeviceType: report.DeviceType,
	})

	if err := s.reports.Create(ctx, report); err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	s.dispatcher.Dispatch(ctx, accumulator.Drain())
	return report.ID, nil
}

// Edit changes the report name and comment. Only the creator may edit.
func (s *ReportsService) Edit(
	ctx context.Context,
	userID string,
	reportID string,
	reportName string,
	comment string,
) error {
	report, err := s.loadOwned(ctx, userID, reportID)
	if err != nil {
		return err
	}

	accumulator := domain.NewAccumulator()
	accumulator.Add(report.Edit(reportName, comment)...)

	if err := s.reports.Update(ctx, report); err != nil {
		return fmt.Errorf("update report: %w", err)
	}

	s.dispatcher.Dispatch(ctx, accumulator.Drain())
	return nil
}

// Delete removes a report and cascades to its artifact. The media row and
// object go first so the report row's foreign key is free to drop.
func (s *ReportsService) Delete(ctx context.Context, userID, reportID string) error {
	report, err := s.loadOwned(ctx, userID, reportID)
	if err != nil {
		return err
	}

	accumulator := domain.NewAccumulator()

	media, err := s.media.WithReportID(ctx, reportID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load media for deletion: %w", err)
	}
	if media != nil {
		fileName := domain.BuildFileName(media.ID, media.Metadata.ContentType)
		if err := s.objects.Delete(ctx, fileName); err != nil {
			return fmt.Errorf("delete artifact object: %w", err)
		}
		if err := s.media.Delete(ctx, media.ID); err != nil {
			return fmt.Errorf("delete artifact record: %w", err)
		}
		accumulator.Add(domain.ReportMediaDeleted{MediaID: media.ID, ReportID: reportID})
	}

	if err := s.reports.Delete(ctx, report.ID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	accumulator.Add(domain.ReportDeleted{ReportID: reportID})

	s.dispatcher.Dispatch(ctx, accumulator.Drain())
	return nil
}

// Get returns the report read model, including the media read model with a
// fresh presigned URL when an artifact exists.
func (s *ReportsService) Get(ctx context.Context, reportID string) (*domain.ReportReadModel, error) {
	report, err := s.reports.WithID(ctx, reportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NewNotFound("report with id %s not found", reportID)
		}
		return nil, err
	}

	readModel := reportReadModel(report)
	media, err := s.MediaByReportID(ctx, reportID)
	if err != nil && domain.KindOf(err) != domain.ErrorKindNotFound {
		return nil, err
	}
	readModel.Media = media
	return readModel, nil
}

// List returns one page of report read models, newest first.
func (s *ReportsService) List(
	ctx context.Context,
	pagination domain.Pagination,
) ([]domain.ReportReadModel, error) {
	reports, err := s.reports.List(ctx, pagination)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ReportReadModel, 0, len(reports))
	for i := range reports {
		readModel := reportReadModel(&reports[i])
		media, err := s.MediaByReportID(ctx, reports[i].ID)
		if err != nil && domain.KindOf(err) != domain.ErrorKindNotFound {
			return nil, err
		}
		readModel.Media = media
		items = append(items, *readModel)
	}
	return items, nil
}

// MediaByReportID re-reads the durable artifact record and mints a presigned
// access URL for it.
func (s *ReportsService) MediaByReportID(
	ctx context.Context,
	reportID string,
) (*domain.MediaReadModel, error) {
	media, err := s.media.WithReportID(ctx, reportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NewNotFound("media with report %s not found", reportID)
		}
		return nil, err
	}

	fileName := domain.BuildFileName(media.ID, media.Metadata.ContentType)
	presignedURL, err := s.objects.Presign(ctx, fileName)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", fileName, err)
	}

	return &domain.MediaReadModel{
		MediaID:      media.ID,
		ReportID:     media.ReportID,
		Metadata:     media.Metadata,
		UploadedAt:   media.UploadedAt,
		UploadedBy:   media.UploadedBy,
		PresignedURL: presignedURL,
	}, nil
}

func (s *ReportsService) loadOwned(
	ctx context.Context,
	userID string,
	reportID string,
) (*domain.DeviceReport, error) {
	report, err := s.reports.WithID(ctx, reportID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NewNotFound("report with id %s not found", reportID)
		}
		return nil, err
	}
	if report.CreatorID != userID {
		return nil, domain.NewForbidden("user %s is not the creator of report %s", userID, reportID)
	}
	return report, nil
}

func reportReadModel(report *domain.DeviceReport) *domain.ReportReadModel {
	return &domain.ReportReadModel{
		ReportID:   report.ID,
		ReportName: report.ReportName,
		Comment:    report.Comment,
		CreatorID:  report.CreatorID,
		DeviceID:   report.DeviceID,
		DeviceType: report.DeviceType,
		CreatedAt:  report.CreatedAt,
	}
}
