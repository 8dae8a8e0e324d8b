package adapters

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// =============================================================================
// UPLOADED-DOCUMENT ADAPTER
// =============================================================================

// OCRProvider recognizes text in a rendered page image. Implementations
// wrap an external OCR service; tests use a fake.
type OCRProvider interface {
	Recognize(ctx context.Context, imagePNG []byte) (string, error)
}

// ParsedUpload is the result of parsing one uploaded file.
type ParsedUpload struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	Source    string `json:"source"` // "native", "ocr"
}

// UploadParser extracts text from uploaded contracts and filings.
// Strategy per mime type: PDF native extraction with OCR fallback, DOCX
// structured extraction with OCR fallback, HTML rendered to a screenshot
// and OCR'd.
type UploadParser struct {
	ocr     OCRProvider
	browser *rod.Browser
}

// NewUploadParser creates a parser. ocr may be nil, in which case the OCR
// fallback paths report UNAVAILABLE.
func NewUploadParser(ocr OCRProvider) *UploadParser {
	return &UploadParser{ocr: ocr}
}

// Parse extracts text from an uploaded file.
func (p *UploadParser) Parse(ctx context.Context, data []byte, mime string) (*ParsedUpload, error) {
	const op = "adapters.UploadParser.Parse"
	if len(data) == 0 {
		return nil, types.E(types.KindInvalidArgument, op, "empty upload")
	}

	timer := logging.StartTimer(logging.CategoryAdapters, "UploadParser.Parse")
	defer timer.Stop()

	switch {
	case strings.Contains(mime, "pdf"):
		return p.parsePDF(ctx, data)
	case strings.Contains(mime, "wordprocessingml") || strings.HasSuffix(mime, "docx"):
		return p.parseDOCX(ctx, data)
	case strings.Contains(mime, "html"):
		return p.parseHTML(ctx, data)
	case strings.HasPrefix(mime, "text/"):
		return &ParsedUpload{Text: string(data), PageCount: 1, Source: "native"}, nil
	}
	return nil, types.E(types.KindInvalidArgument, op, "unsupported mime type "+mime)
}

// parsePDF attempts native text extraction from uncompressed content
// streams, then falls back to OCR for scanned documents.
func (p *UploadParser) parsePDF(ctx context.Context, data []byte) (*ParsedUpload, error) {
	text, pages := extractPDFText(data)
	if len(strings.TrimSpace(text)) > 50 {
		return &ParsedUpload{Text: text, PageCount: pages, Source: "native"}, nil
	}

	logging.AdaptersDebug("PDF native extraction yielded %d chars, trying OCR", len(text))
	ocrText, err := p.runOCR(ctx, data)
	if err != nil {
		return nil, err
	}
	return &ParsedUpload{Text: ocrText, PageCount: pages, Source: "ocr"}, nil
}

// parseDOCX unzips word/document.xml and walks its paragraph runs.
func (p *UploadParser) parseDOCX(ctx context.Context, data []byte) (*ParsedUpload, error) {
	const op = "adapters.UploadParser.Parse"
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, types.Wrap(types.KindInvalidArgument, op, fmt.Errorf("not a docx archive: %w", err))
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open document.xml: %w", err)
		}
		text, err := extractDOCXText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}
		if strings.TrimSpace(text) != "" {
			return &ParsedUpload{Text: text, PageCount: 1, Source: "native"}, nil
		}
	}

	// Image-only DOCX: hand the raw bytes to OCR.
	ocrText, err := p.runOCR(ctx, data)
	if err != nil {
		return nil, err
	}
	return &ParsedUpload{Text: ocrText, PageCount: 1, Source: "ocr"}, nil
}

// parseHTML renders the page in a headless browser, screenshots it, and
// runs OCR on the image. Rendering handles the contract scans that arrive
// as single-image HTML wrappers.
func (p *UploadParser) parseHTML(ctx context.Context, data []byte) (*ParsedUpload, error) {
	const op = "adapters.UploadParser.Parse"
	if p.ocr == nil {
		return nil, types.E(types.KindUnavailable, op, "no OCR provider configured for HTML uploads")
	}

	if p.browser == nil {
		browser := rod.New()
		if err := browser.Connect(); err != nil {
			return nil, types.Wrap(types.KindUnavailable, op, fmt.Errorf("failed to start browser: %w", err))
		}
		p.browser = browser
	}

	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(string(data)); err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}
	shot, err := page.Screenshot(true, nil)
	if err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}

	text, err := p.ocr.Recognize(ctx, shot)
	if err != nil {
		return nil, types.Wrap(types.KindUnavailable, op, err)
	}
	return &ParsedUpload{Text: text, PageCount: 1, Source: "ocr"}, nil
}

func (p *UploadParser) runOCR(ctx context.Context, data []byte) (string, error) {
	const op = "adapters.UploadParser.Parse"
	if p.ocr == nil {
		return "", types.E(types.KindUnavailable, op, "no OCR provider configured")
	}
	text, err := p.ocr.Recognize(ctx, data)
	if err != nil {
		return "", types.Wrap(types.KindUnavailable, op, err)
	}
	return text, nil
}

// Close releases the headless browser if one was started.
func (p *UploadParser) Close() error {
	if p.browser != nil {
		return p.browser.Close()
	}
	return nil
}

// =============================================================================
// NATIVE EXTRACTORS
// =============================================================================

// extractPDFText pulls text shown by Tj/TJ operators out of uncompressed
// content streams and counts /Type /Page objects. Compressed streams yield
// nothing, which routes the document to OCR.
func extractPDFText(data []byte) (string, int) {
	pages := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	if pages < 1 {
		pages = 1
	}

	var sb strings.Builder
	rest := data
	for {
		open := bytes.IndexByte(rest, '(')
		if open < 0 {
			break
		}
		end := bytes.IndexByte(rest[open:], ')')
		if end < 0 {
			break
		}
		candidate := rest[open+1 : open+end]
		after := rest[open+end:]
		// Only keep strings actually drawn by a text-showing operator.
		if len(after) > 3 && (bytes.HasPrefix(after[1:], []byte(" Tj")) || bytes.HasPrefix(after[1:], []byte("] TJ"))) {
			sb.Write(candidate)
			sb.WriteByte(' ')
		}
		rest = rest[open+end+1:]
	}
	return sb.String(), pages
}

// docxDocument mirrors just enough of the WordprocessingML schema to pull
// paragraph text.
type docxDocument struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func extractDOCXText(r io.Reader) (string, error) {
	var doc docxDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, para := range doc.Body.Paragraphs {
		for _, run := range para.Runs {
			sb.WriteString(run.Text)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
