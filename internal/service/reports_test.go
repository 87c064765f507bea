package service

import (
	"context"
	"testing"

	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/objstore"
	"github.com/deviceops/reports-back/internal/pdf"
	"github.com/deviceops/reports-back/internal/storage"
)

type reportsFixture struct {
	reports  *storage.MemoryReportsRepository
	media    *storage.MemoryMediaRepository
	objects  *objstore.MemoryGateway
	devices  *stubDeviceGateway
	events   *[]domain.Event
	service  *ReportsService
	generate *GenerateService
	userID   string
}

func newReportsFixture(t *testing.T) *reportsFixture {
	t.Helper()

	fixture := &reportsFixture{
		reports: storage.NewMemoryReportsRepository(),
		media:   storage.NewMemoryMediaRepository(),
		objects: objstore.NewMemoryGateway(),
		devices: &stubDeviceGateway{
			device: &domain.DeviceInfo{
				DeviceID:        42,
				Name:            "lab-pc",
				InventoryNumber: "INV-9",
				SerialNumber:    "SN-1",
			},
		},
		userID: domain.NewID(),
	}

	events := make([]domain.Event, 0, 8)
	fixture.events = &events
	dispatcher := NewDispatcher(quietLogger())
	dispatcher.Subscribe(func(_ context.Context, event domain.Event) {
		*fixture.events = append(*fixture.events, event)
	})

	fixture.service = NewReportsService(
		fixture.reports,
		fixture.media,
		fixture.devices,
		fixture.objects,
		dispatcher,
		quietLogger(),
	)
	fixture.generate = NewGenerateService(
		fixture.reports,
		fixture.media,
		fixture.devices,
		pdf.NewGenerator(),
		fixture.objects,
		dispatcher,
		quietLogger(),
	)
	return fixture
}

func (f *reportsFixture) createReport(t *testing.T) string {
	t.Helper()
	reportID, err := f.service.Create(
		context.Background(), f.userID, "broken screen", "flickers on boot", 42, "Computer",
	)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	return reportID
}

func TestCreateReportEmitsCreatedEvent(t *testing.T) {
	fixture := newReportsFixture(t)
	reportID := fixture.createReport(t)

	if reportID == "" {
		t.Fatalf("expected report id")
	}
	if len(*fixture.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*fixture.events))
	}
	created, ok := (*fixture.events)[0].(domain.DeviceReportCreated)
	if !ok {
		t.Fatalf("unexpected event %T", (*fixture.events)[0])
	}
	if created.ReportID != reportID || created.CreatorID != fixture.userID {
		t.Fatalf("unexpected event payload %+v", created)
	}
}

func TestCreateReportUnknownDevice(t *testing.T) {
	fixture := newReportsFixture(t)
	fixture.devices.device = nil

	_, err := fixture.service.Create(
		context.Background(), fixture.userID, "ghost device", "", 999, "Computer",
	)
	if domain.KindOf(err) != domain.ErrorKindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(*fixture.events) != 0 {
		t.Fatalf("expected no events, got %d", len(*fixture.events))
	}
}

func TestEditReportOnlyByCreator(t *testing.T) {
	fixture := newReportsFixture(t)
	reportID := fixture.createReport(t)

	err := fixture.service.Edit(context.Background(), domain.NewID(), reportID, "renamed", "")
	if domain.KindOf(err) != domain.ErrorKindForbidden {
		t.Fatalf("expected forbidden for non-creator, got %v", err)
	}

	if err := fixture.service.Edit(context.Background(), fixture.userID, reportID, "renamed", "new comment"); err != nil {
		t.Fatalf("creator edit failed: %v", err)
	}

	report, err := fixture.service.Get(context.Background(), reportID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if report.ReportName != "renamed" || report.Comment != "new comment" {
		t.Fatalf("edit not applied: %+v", report)
	}
}

func TestGetReportIncludesMediaReadModel(t *testing.T) {
	fixture := newReportsFixture(t)
	reportID := fixture.createReport(t)

	report, err := fixture.service.Get(context.Background(), reportID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if report.Media != nil {
		t.Fatalf("expected no media before generation, got %+v", report.Media)
	}

	fileName, err := fixture.generate.GeneratePDFReport(context.Background(), reportID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	report, err = fixture.service.Get(context.Background(), reportID)
	if err != nil {
		t.Fatalf("get report after generation: %v", err)
	}
	if report.Media == nil {
		t.Fatalf("expected media read model after generation")
	}
	if report.Media.PresignedURL != "memory://media/"+fileName {
		t.Fatalf("unexpected presigned url %q", report.Media.PresignedURL)
	}
}

func TestListReportsNewestFirst(t *testing.T) {
	fixture := newReportsFixture(t)
	first := fixture.createReport(t)
	second := fixture.createReport(t)

	items, err := fixture.service.List(context.Background(), domain.Pagination{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(items))
	}
	if items[0].ReportID != second || items[1].ReportID != first {
		t.Fatalf("expected newest first, got %s then %s", items[0].ReportID, items[1].ReportID)
	}
}

func TestDeleteReportCascadesToArtifact(t *testing.T) {
	fixture := newReportsFixture(t)
	reportID := fixture.createReport(t)

	fileName, err := fixture.generate.GeneratePDFReport(context.Background(), reportID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if err := fixture.service.Delete(context.Background(), fixture.userID, reportID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := fixture.service.Get(context.Background(), reportID); domain.KindOf(err) != domain.ErrorKindNotFound {
		t.Fatalf("expected report gone, got %v", err)
	}
	if _, ok := fixture.objects.Object(fileName); ok {
		t.Fatalf("expected artifact object deleted")
	}
	if _, err := fixture.media.WithReportID(context.Background(), reportID); err == nil {
		t.Fatalf("expected media record deleted")
	}

	var sawMediaDeleted, sawReportDeleted bool
	for _, event := range *fixture.events {
		switch event.(type) {
		case domain.ReportMediaDeleted:
			sawMediaDeleted = true
		case domain.ReportDeleted:
			sawReportDeleted = true
		}
	}
	if !sawMediaDeleted || !sawReportDeleted {
		t.Fatalf("expected media and report deletion events, got %+v", *fixture.events)
	}
}

func TestDeleteReportOnlyByCreator(t *testing.T) {
	fixture := newReportsFixture(t)
	reportID := fixture.createReport(t)

	err := fixture.service.Delete(context.Background(), domain.NewID(), reportID)
	if domain.KindOf(err) != domain.ErrorKindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := fixture.service.Get(context.Background(), reportID); err != nil {
		t.Fatalf("report should survive forbidden delete: %v", err)
	}
}
