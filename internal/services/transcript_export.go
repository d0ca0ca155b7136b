package services

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/nickng/bibtex"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// TranscriptExporter renders a session as a printable PDF transcript or as a
// BibTeX file listing the sources its answers cited.
type TranscriptExporter struct {
	timeLayout string
}

func NewTranscriptExporter() *TranscriptExporter {
	return &TranscriptExporter{timeLayout: "2006-01-02 15:04"}
}

// PDF writes the transcript and returns its page count.
func (e *TranscriptExporter) PDF(session Session, w io.Writer) (int, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(session.Title), false)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.MultiCell(0, 8, tr(session.Title), "", "L", false)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Creado: %s", session.CreatedAt.Format(e.timeLayout)))
	pdf.Ln(10)

	for _, msg := range session.Messages {
		label := "Usuario"
		if msg.Sender == SenderAgent {
			label = "Agente"
			if msg.Confidence != "" {
				label = fmt.Sprintf("Agente (confianza: %s)", msg.Confidence)
			}
		}

		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 6, tr(fmt.Sprintf("%s - %s", label, msg.Timestamp.Format(e.timeLayout))))
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(0, 5, tr(msg.Text), "", "L", false)

		if len(msg.Sources) > 0 {
			pdf.SetFont("Arial", "I", 9)
			pdf.Cell(0, 5, "Referencias")
			pdf.Ln(5)
			for i, src := range msg.Sources {
				line := fmt.Sprintf("[%d] %s (score %.2f)", i+1, src.Title, src.Score)
				if src.URL != nil && *src.URL != "" {
					line += " " + *src.URL
				}
				pdf.MultiCell(0, 4, tr(line), "", "L", false)
			}
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("render transcript: %w", err)
	}

	pages, err := api.PageCount(bytes.NewReader(buf.Bytes()), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("inspect transcript: %w", err)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return pages, nil
}

// BibTeX lists every distinct source cited in the session as a @misc entry.
func (e *TranscriptExporter) BibTeX(session Session) string {
	bib := bibtex.NewBibTex()
	seen := make(map[string]bool)

	for _, msg := range session.Messages {
		for _, src := range msg.Sources {
			key := sourceKey(src)
			if seen[key] {
				continue
			}
			seen[key] = true

			entry := bibtex.NewBibEntry("misc", fmt.Sprintf("source%d", len(seen)))
			entry.AddField("title", bibtex.NewBibConst(src.Title))
			if src.URL != nil && *src.URL != "" {
				entry.AddField("howpublished", bibtex.NewBibConst(fmt.Sprintf("\\url{%s}", *src.URL)))
			}
			var keywords []string
			if src.Area != nil && *src.Area != "" {
				keywords = append(keywords, *src.Area)
			}
			if src.Category != nil && *src.Category != "" {
				keywords = append(keywords, *src.Category)
			}
			if len(keywords) > 0 {
				entry.AddField("keywords", bibtex.NewBibConst(strings.Join(keywords, ", ")))
			}
			entry.AddField("note", bibtex.NewBibConst(fmt.Sprintf("relevance %.2f", src.Score)))
			bib.AddEntry(entry)
		}
	}
	return bib.String()
}

func sourceKey(src Source) string {
	url := ""
	if src.URL != nil {
		url = *src.URL
	}
	return src.Title + "\x00" + url
}
