package clinical

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions carries the letterhead printed on every prescription.
type PDFOptions struct {
	ClinicName string
	Address    string
	Phone      string
}

// RenderPrescriptionPDF writes a printable A4 prescription to w.
func RenderPrescriptionPDF(w io.Writer, p *Prescription, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Receta "+p.ID.String(), true)
	pdf.AddPage()

	// Core fonts are cp1252; names and instructions carry accents.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(20, 70, 120)
	pdf.CellFormat(0, 9, tr(opts.ClinicName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(90, 90, 90)
	if line := joinNonEmpty(" | ", opts.Address, opts.Phone); line != "" {
		pdf.CellFormat(0, 5, tr(line), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr("Receta médica"), "1", 1, "C", false, 0, "")
	pdf.Ln(2)

	addDetail(pdf, tr, "Fecha", p.Date)
	addDetail(pdf, tr, "Paciente", p.ChildName)
	if info := p.PatientInfo; info != nil {
		if info.Age > 0 {
			addDetail(pdf, tr, "Edad", fmt.Sprintf("%d años", info.Age))
		}
		addDetail(pdf, tr, "Peso", info.Weight)
		addDetail(pdf, tr, "Alergias", info.Allergies)
		addDetail(pdf, tr, "Tutor", info.TutorName)
	}
	addDetail(pdf, tr, "Diagnóstico", p.Diagnosis)
	addDetail(pdf, tr, "Tratamiento", p.TreatmentName)
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Medicamentos", "B", 1, "L", false, 0, "")
	pdf.Ln(1)
	for i, m := range p.Medications {
		pdf.SetFont("Arial", "B", 10)
		title := m.Name
		if m.ActiveIngredient != "" {
			title += " (" + m.ActiveIngredient + ")"
		}
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%d. %s", i+1, title)), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		dose := joinNonEmpty(", ", m.Dosage, m.Frequency, m.Duration)
		pdf.MultiCell(0, 5, tr("    "+dose), "", "L", false)
		if m.Instructions != "" {
			pdf.MultiCell(0, 5, tr("    "+m.Instructions), "", "L", false)
		}
		pdf.Ln(1)
	}

	if p.GeneralInstructions != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Indicaciones generales", "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(p.GeneralInstructions), "", "L", false)
	}
	if p.Notes != "" {
		pdf.Ln(2)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, tr(p.Notes), "", "L", false)
	}

	pdf.SetY(pdf.GetY() + 20)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, "______________________________", "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 5, tr(p.Doctor), "", 1, "R", false, 0, "")
	if p.DoctorRegistration != "" {
		pdf.CellFormat(0, 5, tr("Céd. Prof. "+p.DoctorRegistration), "", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render prescription pdf: %w", err)
	}
	return nil
}

func addDetail(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	if value == "" {
		return
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, tr(label+":"), "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 6, tr(value), "", "L", false)
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
