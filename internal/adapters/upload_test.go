package adapters

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"pravnyk/internal/types"
)

type fakeOCR struct {
	text  string
	calls int
}

func (f *fakeOCR) Recognize(ctx context.Context, imagePNG []byte) (string, error) {
	f.calls++
	return f.text, nil
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	w.Write([]byte(documentXML))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestParseDOCXNative(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Договір поставки № 17.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Постачальник зобов'язується передати товар.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	p := NewUploadParser(nil)
	got, err := p.Parse(context.Background(),
		buildDOCX(t, docXML),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Source != "native" {
		t.Errorf("source = %s, want native", got.Source)
	}
	if !bytes.Contains([]byte(got.Text), []byte("Договір поставки")) {
		t.Errorf("text = %q", got.Text)
	}
	if !bytes.Contains([]byte(got.Text), []byte("передати товар")) {
		t.Errorf("second paragraph missing: %q", got.Text)
	}
}

func TestParseDOCXCorrupt(t *testing.T) {
	p := NewUploadParser(nil)
	_, err := p.Parse(context.Background(), []byte("not a zip"),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}
}

func TestParsePDFNativeText(t *testing.T) {
	// Minimal uncompressed PDF content stream with Tj operators.
	pdf := []byte(`%PDF-1.4
1 0 obj << /Type /Page >> endobj
stream
BT (This supply contract between the parties dated 2024) Tj ET
BT (sets the obligations of the supplier in full detail) Tj ET
endstream
%%EOF`)

	p := NewUploadParser(nil)
	got, err := p.Parse(context.Background(), pdf, "application/pdf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Source != "native" {
		t.Errorf("source = %s, want native", got.Source)
	}
	if !bytes.Contains([]byte(got.Text), []byte("supply contract")) {
		t.Errorf("text = %q", got.Text)
	}
}

func TestParsePDFScannedFallsBackToOCR(t *testing.T) {
	// A "scanned" PDF: no extractable text operators.
	pdf := []byte("%PDF-1.4\n1 0 obj << /Type /Page >> endobj\nstream\nbinaryimagedata\nendstream\n%%EOF")

	ocr := &fakeOCR{text: "Розпізнаний текст скан-копії договору"}
	p := NewUploadParser(ocr)
	got, err := p.Parse(context.Background(), pdf, "application/pdf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Source != "ocr" {
		t.Errorf("source = %s, want ocr", got.Source)
	}
	if ocr.calls != 1 {
		t.Errorf("ocr calls = %d, want 1", ocr.calls)
	}
	if got.Text != "Розпізнаний текст скан-копії договору" {
		t.Errorf("text = %q", got.Text)
	}
}

func TestParsePDFScannedWithoutOCR(t *testing.T) {
	pdf := []byte("%PDF-1.4\nstream\nbinary\nendstream")
	p := NewUploadParser(nil)
	_, err := p.Parse(context.Background(), pdf, "application/pdf")
	if types.KindOf(err) != types.KindUnavailable {
		t.Errorf("kind = %s, want UNAVAILABLE", types.KindOf(err))
	}
}

func TestParsePlainText(t *testing.T) {
	p := NewUploadParser(nil)
	got, err := p.Parse(context.Background(), []byte("звичайний текст"), "text/plain")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Text != "звичайний текст" || got.Source != "native" {
		t.Errorf("got = %+v", got)
	}
}

func TestParseUnsupportedMime(t *testing.T) {
	p := NewUploadParser(nil)
	_, err := p.Parse(context.Background(), []byte{1, 2, 3}, "image/bmp")
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}

	_, err = p.Parse(context.Background(), nil, "application/pdf")
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("empty upload kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}
}

func TestFetchCacheRoundTrip(t *testing.T) {
	cache, err := NewFetchCache(":memory:")
	if err != nil {
		t.Fatalf("NewFetchCache: %v", err)
	}
	defer cache.Close()

	if _, ok := cache.Get("https://example.com/a", 0); ok {
		t.Error("hit on empty cache")
	}
	if err := cache.Put("https://example.com/a", []byte("body-a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, ok := cache.Get("https://example.com/a", 0)
	if !ok || string(body) != "body-a" {
		t.Errorf("got %q, %v", body, ok)
	}

	// Overwrite refreshes the entry.
	cache.Put("https://example.com/a", []byte("body-b"))
	body, _ = cache.Get("https://example.com/a", 0)
	if string(body) != "body-b" {
		t.Errorf("got %q after overwrite", body)
	}
}
