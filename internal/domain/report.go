package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeviceType is the inventory category a device belongs to ("Computer",
// "Printer", ...) as exposed by the GLPI API path.
type DeviceType string

// DeviceReport is a user-filed report against one inventoried device.
// Creator and device reference are fixed at creation; only the name and
// comment are editable, and only by the creator.
type DeviceReport struct {
	ID         string
	ReportName string
	Comment    string
	CreatorID  string
	DeviceID   int
	DeviceType DeviceType
	CreatedAt  time.Time
}

// Edit applies the only mutation a report supports.
func (r *DeviceReport) Edit(reportName, comment string) []Event {
	events := make([]Event, 0, 2)
	if r.ReportName != reportName {
		r.ReportName = reportName
		events = append(events, ReportNameChanged{ReportID: r.ID, ReportName: reportName})
	}
	if r.Comment != comment {
		r.Comment = comment
		events = append(events, ReportCommentChanged{ReportID: r.ID, Comment: comment})
	}
	return events
}

// MediaMetadata describes the stored artifact bytes.
type MediaMetadata struct {
	FileSize    int    `json:"file_size"`
	ContentType string `json:"content_type"`
}

// ReportMedia is the structured record of a generated artifact. At most one
// exists per report.
type ReportMedia struct {
	ID         string
	ReportID   string
	UploadedBy string
	UploadedAt time.Time
	Metadata   MediaMetadata
}

// DeviceInfo is the external inventory read model. It is fetched per request
// and never persisted.
type DeviceInfo struct {
	DeviceID        int
	Name            string
	InventoryNumber string
	SerialNumber    string
}

// MediaReadModel is what media queries and the delivery channel carry:
// the durable record plus a freshly minted presigned access URL.
type MediaReadModel struct {
	MediaID      string        `json:"media_id"`
	ReportID     string        `json:"report_id"`
	Metadata     MediaMetadata `json:"metadata"`
	UploadedAt   time.Time     `json:"uploaded_at"`
	UploadedBy   string        `json:"uploaded_by"`
	PresignedURL string        `json:"presigned_url"`
}

// ReportReadModel is the report plus its media, when one exists.
type ReportReadModel struct {
	ReportID   string          `json:"report_id"`
	ReportName string          `json:"report_name"`
	Comment    string          `json:"comment"`
	CreatorID  string          `json:"creator_id"`
	DeviceID   int             `json:"device_id"`
	DeviceType DeviceType      `json:"device_type"`
	CreatedAt  time.Time       `json:"created_at"`
	Media      *MediaReadModel `json:"media,omitempty"`
}

type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return 20
	}
	return p.PageSize
}

func (p Pagination) Offset() int {
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return (page - 1) * p.Limit()
}

// BuildFileName derives the deterministic object-store key for an artifact.
func BuildFileName(mediaID, contentType string) string {
	return fmt.Sprintf("%s.%s", mediaID, contentType)
}

// NewID mints a time-ordered UUIDv7 identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
