package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrCapabilityUnavailable is returned when a document format is recognised
// but no extractor for it is available in this build or configuration.
var ErrCapabilityUnavailable = errors.New("document extraction unavailable")

// Extractor pulls plain text, one line per paragraph or cell, out of a
// binary document.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(data []byte) (string, error)

func (f ExtractorFunc) Extract(data []byte) (string, error) { return f(data) }

// DocumentExtensions lists file extensions treated as documents. Files with
// these extensions are never read as plain text.
var DocumentExtensions = []string{".docx", ".xlsx", ".doc", ".odt"}

// DefaultExtractors returns the extractors built into this package.
func DefaultExtractors() map[string]Extractor {
	return map[string]Extractor{
		".docx": ExtractorFunc(ExtractDOCX),
		".xlsx": ExtractorFunc(ExtractXLSX),
	}
}

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// ExtractDOCX returns the text of every top-level body paragraph, in
// document order, joined with newlines. Paragraphs inside tables are skipped.
func ExtractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("opening docx: word/document.xml not found")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("opening docx body: %w", err)
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return "", fmt.Errorf("reading docx body: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		paraDepth  int // nested paragraphs (text boxes) do not count toward the outer one
		tableDepth int
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paragraphs, nil
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space != wordNamespace {
				continue
			}
			switch el.Name.Local {
			case "tbl":
				tableDepth++
			case "p":
				if tableDepth == 0 {
					paraDepth++
					if paraDepth == 1 {
						current.Reset()
					}
				}
			case "t":
				inText = paraDepth == 1 && tableDepth == 0
			case "tab":
				if paraDepth == 1 && tableDepth == 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if paraDepth == 1 && tableDepth == 0 {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if el.Name.Space != wordNamespace {
				continue
			}
			switch el.Name.Local {
			case "tbl":
				tableDepth--
			case "p":
				if tableDepth == 0 && paraDepth > 0 {
					if paraDepth == 1 {
						paragraphs = append(paragraphs, current.String())
					}
					paraDepth--
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(el)
			}
		}
	}
}

// ExtractXLSX returns every non-empty cell of every sheet, row by row, one
// cell per line.
func ExtractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					lines = append(lines, cell)
				}
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
