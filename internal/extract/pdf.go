package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates per-page text in document order, newline
// separated, skipping pages that yield no text. The pdf library panics on
// some malformed inputs, so panics are contained here too.
func extractPDF(filename string, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Filename: filename, Reason: fmt.Sprintf("pdf parser fault: %v", r)}
		}
	}()

	reader, rerr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if rerr != nil {
		return "", &ExtractionError{Filename: filename, Reason: "unable to parse pdf", Cause: rerr}
	}

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			return "", &ExtractionError{Filename: filename, Reason: fmt.Sprintf("unable to extract text from page %d of %d", i, reader.NumPage()), Cause: perr}
		}
		if strings.TrimSpace(pageText) != "" {
			parts = append(parts, pageText)
		}
	}
	return strings.Join(parts, "\n"), nil
}
