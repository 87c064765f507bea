// Package pdf renders the device report artifact. Generation is a pure
// transformation of the inventory read model; every interesting failure mode
// lives in the adapters around it.
package pdf

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/deviceops/reports-back/internal/domain"
)

const contentType = "pdf"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the PDF bytes and derives the artifact metadata from them.
func (g *Generator) Generate(device domain.DeviceInfo) ([]byte, domain.MediaMetadata, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Device Report", false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 12, "Device Report", "", 1, "L", false, 0, "")
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 12)
	writeField(doc, "Device ID", strconv.Itoa(device.DeviceID))
	writeField(doc, "Name", device.Name)
	writeField(doc, "Inventory number", device.InventoryNumber)
	writeField(doc, "Serial number", device.SerialNumber)

	var buffer bytes.Buffer
	if err := doc.Output(&buffer); err != nil {
		return nil, domain.MediaMetadata{}, fmt.Errorf("render pdf: %w", err)
	}

	file := buffer.Bytes()
	metadata := domain.MediaMetadata{
		FileSize:    len(file),
		ContentType: contentType,
	}
	return file, metadata, nil
}

func writeField(doc *fpdf.Fpdf, label, value string) {
	if value == "" {
		value = "-"
	}
	doc.SetFont("Helvetica", "B", 12)
	doc.CellFormat(55, 8, label, "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 12)
	doc.CellFormat(0, 8, value, "", 1, "L", false, 0, "")
}
