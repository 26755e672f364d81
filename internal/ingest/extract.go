package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// AllowedExtensions is the upload allowlist. Anything else is rejected
// before the pipeline starts.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".xlsx": true,
	".csv":  true,
	".md":   true,
	".txt":  true,
	".json": true,
}

// ExtensionAllowed reports whether a filename passes the allowlist.
func ExtensionAllowed(filename string) bool {
	return AllowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractedContent is what the text stage hands the LLM stage: plain
// text for formats we can read locally, or the raw PDF bytes for the
// model to read itself.
type ExtractedContent struct {
	Text string
	PDF  []byte
}

// TextExtractor converts an uploaded file into LLM-ready content.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (ExtractedContent, error)
}

type fileTextExtractor struct{}

func NewTextExtractor() TextExtractor {
	return fileTextExtractor{}
}

// Extract dispatches on the file extension, cross-checked against the
// sniffed MIME type so a renamed binary cannot masquerade as text.
func (fileTextExtractor) Extract(_ context.Context, filename string, data []byte) (ExtractedContent, error) {
	if len(data) == 0 {
		return ExtractedContent{}, errors.New("empty file")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	detected := mimetype.Detect(data)

	switch ext {
	case ".txt", ".md", ".csv", ".json":
		if !isTextLike(detected) {
			return ExtractedContent{}, fmt.Errorf("file %s is not text (detected %s)", filename, detected.String())
		}
		return ExtractedContent{Text: string(data)}, nil
	case ".pdf":
		if !detected.Is("application/pdf") {
			return ExtractedContent{}, fmt.Errorf("file %s is not a PDF (detected %s)", filename, detected.String())
		}
		return ExtractedContent{PDF: data}, nil
	case ".docx":
		text, err := docxText(data)
		if err != nil {
			return ExtractedContent{}, err
		}
		return ExtractedContent{Text: text}, nil
	case ".xlsx":
		text, err := xlsxText(data)
		if err != nil {
			return ExtractedContent{}, err
		}
		return ExtractedContent{Text: text}, nil
	default:
		return ExtractedContent{}, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func isTextLike(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		if strings.HasPrefix(cur.String(), "text/") || cur.Is("application/json") || cur.Is("application/csv") {
			return true
		}
	}
	return false
}

// docxText pulls the character data out of word/document.xml. Paragraph
// boundaries become newlines; all other markup is dropped.
func docxText(data []byte) (string, error) {
	return zipEntryText(data, "word/document.xml", "p")
}

// xlsxText reads the shared string table, which holds the workbook's
// text cells.
func xlsxText(data []byte) (string, error) {
	return zipEntryText(data, "xl/sharedStrings.xml", "si")
}

func zipEntryText(data []byte, entry string, breakElement string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	f, err := zr.Open(entry)
	if err != nil {
		return "", fmt.Errorf("missing %s: %w", entry, err)
	}
	defer f.Close()
	return flattenXMLText(f, breakElement)
}

// flattenXMLText concatenates all character data in an XML stream,
// inserting a newline at the close of each breakElement.
func flattenXMLText(r io.Reader, breakElement string) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == breakElement {
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collapseSpaceAll(in []string) []string {
	var out []string
	for _, s := range in {
		if c := collapseSpace(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}
