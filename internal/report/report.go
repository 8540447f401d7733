// Package report renders the final order report as PDF.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"itflow/internal/model"
	"itflow/internal/workflow"
)

const dateLayout = "2006-01-02 15:04"

type Company struct {
	Name    string
	Address string
	TaxID   string
	Phone   string
}

type FinalReport struct {
	Company     Company
	Order       model.Order
	ClientName  string
	ManagerName string
	History     []model.LogEntry
	GeneratedAt time.Time
}

// Write renders r as an A4 PDF into w.
func Write(w io.Writer, r FinalReport) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 40, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 40

	pdf.SetHeaderFunc(func() {
		pdf.SetY(15)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 5, tr(r.Company.Name), "", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 4, tr(r.Company.Address), "", 1, "R", false, 0, "")
		pdf.CellFormat(0, 4, tr(fmt.Sprintf("Tax ID: %s | Tel: %s", r.Company.TaxID, r.Company.Phone)), "", 1, "R", false, 0, "")
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(128, 128, 128)
		footer := fmt.Sprintf("Final report for order #%d | %s | Page %d/{nb}", r.Order.ID, r.Company.Name, pdf.PageNo())
		pdf.CellFormat(0, 5, tr(footer), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("FINAL REPORT FOR ORDER #%d", r.Order.ID)), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	section(pdf, tr, "1. Key facts")
	rows := [][2]string{
		{"Title", r.Order.Title},
		{"Client", r.ClientName},
		{"Manager", orDefault(r.ManagerName, "Unassigned")},
		{"Final status", workflow.Label(r.Order.Status)},
		{"Submitted", r.Order.CreatedAt.Format(dateLayout)},
	}
	if r.Order.Status == model.StatusDone {
		rows = append(rows, [2]string{"Finished", r.Order.UpdatedAt.Format(dateLayout)})
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, 7, tr(row[0]+":"), "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(contentW-40, 7, tr(row[1]), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	section(pdf, tr, "2. Scope of work")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(r.Order.Description), "", "L", false)
	pdf.Ln(6)

	section(pdf, tr, "3. History")
	pdf.SetFont("Helvetica", "", 9)
	if len(r.History) == 0 {
		pdf.MultiCell(0, 5, tr("No recorded events."), "", "L", false)
	}
	for _, e := range r.History {
		actor := orDefault(e.ActorName, "system")
		line := fmt.Sprintf("[%s] %s (%s): %s", e.Timestamp.Format(dateLayout), actor, e.EventType, e.Description)
		pdf.SetX(25)
		pdf.MultiCell(contentW-5, 5, tr(line), "", "L", false)
	}
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5, tr("Generated "+r.GeneratedAt.Format(dateLayout)), "", 1, "L", false, 0, "")
	pdf.Ln(10)
	pdf.CellFormat(0, 5, "..............................................", "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 5, tr("Manager signature: "+orDefault(r.ManagerName, "")), "", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
