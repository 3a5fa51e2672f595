package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// detectConfidenceThreshold is the minimum chardet confidence for the
// detected charset to be tried ahead of the fallback list.
const detectConfidenceThreshold = 80

// fallbackEncodings is always attempted, in order, regardless of what the
// detector says. ISO-8859-1 accepts any byte sequence, so the chain is
// guaranteed to terminate with a decode for .txt input.
var fallbackEncodings = []string{"UTF-8", "UTF-16", "ISO-8859-1", "Windows-1252", "ASCII"}

func extractPlainText(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	var attempted []string
	bestGuess := ""
	confidence := 0

	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res != nil {
		bestGuess = res.Charset
		confidence = res.Confidence
		if res.Confidence >= detectConfidenceThreshold {
			if text, err := tryDecode(res.Charset, data); err == nil {
				return text, nil
			}
			attempted = append(attempted, res.Charset)
		}
	}

	for _, name := range fallbackEncodings {
		if alreadyTried(attempted, name) {
			continue
		}
		if text, err := tryDecode(name, data); err == nil {
			return text, nil
		}
		attempted = append(attempted, name)
	}

	return "", &ExtractionError{
		Filename:   filename,
		Reason:     fmt.Sprintf("unable to decode text file (tried %s; detector guessed %s with confidence %d)", strings.Join(attempted, ", "), bestGuess, confidence),
		Attempted:  attempted,
		BestGuess:  bestGuess,
		Confidence: confidence,
	}
}

func alreadyTried(attempted []string, name string) bool {
	for _, a := range attempted {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func tryDecode(name string, data []byte) (string, error) {
	switch strings.ToUpper(name) {
	case "UTF-8", "UTF8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid UTF-8 byte sequence")
		}
		return string(data), nil

	case "UTF-16", "UTF-16LE", "UTF-16BE":
		// A BOM is mandatory here; without one UTF-16 would accept nearly
		// any even-length payload and shadow the remaining fallbacks.
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "ISO-8859-1", "LATIN-1", "LATIN1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "WINDOWS-1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "ASCII", "US-ASCII":
		for _, b := range data {
			if b >= 0x80 {
				return "", fmt.Errorf("non-ASCII byte 0x%02x", b)
			}
		}
		return string(data), nil

	default:
		enc, err := ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return "", fmt.Errorf("unknown charset %q", name)
		}
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		// x/text decoders substitute U+FFFD instead of failing; treat a
		// substitution as a failed decode so the fallback chain continues.
		if strings.ContainsRune(string(out), utf8.RuneError) {
			return "", fmt.Errorf("charset %q does not cleanly decode input", name)
		}
		return string(out), nil
	}
}
