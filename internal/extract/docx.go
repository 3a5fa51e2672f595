package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// extractDOCX pulls paragraph text out of the OOXML package. A .docx file
// is a zip archive whose word/document.xml holds the body; text lives in
// <w:t> runs grouped into <w:p> paragraphs.
func extractDOCX(filename string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Filename: filename, Reason: "not a valid docx archive", Cause: err}
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", &ExtractionError{Filename: filename, Reason: "word/document.xml missing from archive"}
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", &ExtractionError{Filename: filename, Reason: "unable to open word/document.xml", Cause: err}
	}
	defer rc.Close()

	var parts []string
	var para strings.Builder

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &ExtractionError{Filename: filename, Reason: "malformed document xml", Cause: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var run string
				if err := dec.DecodeElement(&run, &t); err != nil {
					return "", &ExtractionError{Filename: filename, Reason: "malformed text run", Cause: err}
				}
				para.WriteString(run)
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				if p := para.String(); strings.TrimSpace(p) != "" {
					parts = append(parts, p)
				}
				para.Reset()
			}
		}
	}

	return strings.Join(parts, "\n"), nil
}
