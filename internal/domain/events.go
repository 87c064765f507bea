package domain

// Event is a domain signal recorded while handling a command. Events are
// collected into a per-operation Accumulator and only handed to consumers
// after the operation's writes have committed.
type Event interface {
	EventName() string
}

type DeviceReportCreated struct {
	ReportID   string
	ReportName string
	Comment    string
	CreatorID  string
	DeviceID   int
	DeviceType DeviceType
}

func (DeviceReportCreated) EventName() string { return "report_created" }

type ReportNameChanged struct {
	ReportID   string
	ReportName string
}

func (ReportNameChanged) EventName() string { return "report_name_changed" }

type ReportCommentChanged struct {
	ReportID string
	Comment  string
}

func (ReportCommentChanged) EventName() string { return "report_comment_changed" }

type ReportDeleted struct {
	ReportID string
}

func (ReportDeleted) EventName() string { return "report_deleted" }

type ReportMediaGenerated struct {
	MediaID    string
	ReportID   string
	UploadedBy string
	Metadata   MediaMetadata
}

func (ReportMediaGenerated) EventName() string { return "report_media_generated" }

type ReportMediaDeleted struct {
	MediaID  string
	ReportID string
}

func (ReportMediaDeleted) EventName() string { return "report_media_deleted" }

// Accumulator buffers the events one operation produces. It is created per
// command, passed by reference into the code that records events, and drained
// exactly once by the orchestrating layer after the transactional write
// succeeds. It is not safe for concurrent use and never shared across
// operations.
type Accumulator struct {
	events []Event
}

func NewAccumulator() *Accumulator {
	return &Accumulator{events: make([]Event, 0, 4)}
}

func (a *Accumulator) Add(events ...Event) {
	a.events = append(a.events, events...)
}

// Drain returns the buffered events and resets the accumulator.
func (a *Accumulator) Drain() []Event {
	drained := a.events
	a.events = nil
	return drained
}
