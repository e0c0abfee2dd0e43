package web

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// ReportBuilder renders the current defense state as a PDF incident report.
type ReportBuilder struct {
	service ports.DefenseService
}

// NewReportBuilder creates a builder over the defense service.
func NewReportBuilder(service ports.DefenseService) *ReportBuilder {
	return &ReportBuilder{service: service}
}

// Build renders the device table and recent alerts.
func (b *ReportBuilder) Build(ctx context.Context) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 12, "Trapwire Incident Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Device table
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, "Devices", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	widths := []float64{32, 38, 30, 18, 18, 34, 20}
	headers := []string{"IP", "MAC", "Hostname", "Trust", "Ports", "Status", "Packets"}
	for i, hd := range headers {
		pdf.CellFormat(widths[i], 7, hd, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, d := range b.service.Devices(ctx) {
		cols := []string{
			d.IP, d.MAC, d.Hostname,
			fmt.Sprintf("%d", d.TrustScore),
			fmt.Sprintf("%d", d.Ports),
			string(d.Status),
			fmt.Sprintf("%d", d.Packets),
		}
		for i, c := range cols {
			pdf.CellFormat(widths[i], 6, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	// Recent alerts
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Recent Alerts", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	alerts := b.service.Alerts(ctx)
	if len(alerts) == 0 {
		pdf.CellFormat(0, 6, "No alerts recorded.", "", 1, "L", false, 0, "")
	}
	for _, a := range alerts {
		line := fmt.Sprintf("%s  %s  %s  %s", a.Timestamp.Format("2006-01-02 15:04:05"), a.IP, a.Action, a.Type)
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}
