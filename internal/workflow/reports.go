package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/service"
)

const (
	ReportsWorkflowName = "reports"

	StageGeneratePDFReport = "generate_pdf_report"
	StageLoadMedia         = "load_media_by_report_id"
	StageEmitMedia         = "emitting_media"

	// DeliveryEventName is the wire event pushed to the report's room.
	DeliveryEventName = "Pdf Report"
)

// Emitter pushes a payload to every subscriber of a room, best effort.
type Emitter interface {
	Emit(event string, payload any, room string) error
}

type stageOutput struct {
	Media *domain.MediaReadModel `json:"media"`
}

// NewReportsWorkflow wires the three-stage delivery pipeline:
// generate the artifact, re-read its durable read model, emit it to the
// report's room. The load stage deliberately ignores whatever the generate
// stage held in memory so the delivered payload always reflects committed
// state.
func NewReportsWorkflow(
	generate *service.GenerateService,
	reports *service.ReportsService,
	emitter Emitter,
) (Definition, error) {
	generateStage := Stage{
		Name:        StageGeneratePDFReport,
		MaxAttempts: defaultStageAttempts,
		Run: func(ctx context.Context, run *Run) (json.RawMessage, error) {
			if _, err := generate.GeneratePDFReport(ctx, run.ReportID); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}

	loadStage := Stage{
		Name:        StageLoadMedia,
		Parents:     []string{StageGeneratePDFReport},
		MaxAttempts: defaultStageAttempts,
		Run: func(ctx context.Context, run *Run) (json.RawMessage, error) {
			media, err := reports.MediaByReportID(ctx, run.ReportID)
			if err != nil {
				return nil, err
			}
			output, err := json.Marshal(stageOutput{Media: media})
			if err != nil {
				return nil, fmt.Errorf("encode stage output: %w", err)
			}
			return output, nil
		},
	}

	emitStage := Stage{
		Name:        StageEmitMedia,
		Parents:     []string{StageLoadMedia},
		MaxAttempts: defaultStageAttempts,
		Run: func(ctx context.Context, run *Run) (json.RawMessage, error) {
			media, err := deliveredMedia(ctx, run, reports)
			if err != nil {
				return nil, err
			}
			payload := map[string]any{"report": media}
			if err := emitter.Emit(DeliveryEventName, payload, run.ReportID); err != nil {
				return nil, fmt.Errorf("emit media: %w", err)
			}
			return nil, nil
		},
	}

	return NewDefinition(ReportsWorkflowName, generateStage, loadStage, emitStage)
}

// deliveredMedia prefers the load stage's output; when the run was adopted
// from another process and the output is not local, it re-reads the read
// model instead.
func deliveredMedia(
	ctx context.Context,
	run *Run,
	reports *service.ReportsService,
) (*domain.MediaReadModel, error) {
	if raw := run.Output(StageLoadMedia); raw != nil {
		var output stageOutput
		if err := json.Unmarshal(raw, &output); err == nil && output.Media != nil {
			return output.Media, nil
		}
	}
	return reports.MediaByReportID(ctx, run.ReportID)
}
