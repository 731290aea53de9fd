package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePDFDocument struct {
	info      map[string]string
	pages     []string
	encrypted bool
	failPage  int
}

func (d *fakePDFDocument) Info() map[string]string { return d.info }
func (d *fakePDFDocument) NumPages() int           { return len(d.pages) }
func (d *fakePDFDocument) Encrypted() bool         { return d.encrypted }

func (d *fakePDFDocument) PageText(n int) (string, error) {
	if n == d.failPage {
		return "", errors.New("broken page")
	}
	return d.pages[n-1], nil
}

type fakePDFReader struct {
	doc *fakePDFDocument
	err error
}

func (r fakePDFReader) OpenPDF([]byte) (PDFDocument, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.doc, nil
}

// panicPDFReader simulates a parser crashing on a hostile file.
type panicPDFReader struct{}

func (panicPDFReader) OpenPDF([]byte) (PDFDocument, error) {
	panic("index out of range")
}

// blockingPDFReader never returns until release is closed.
type blockingPDFReader struct {
	release chan struct{}
}

func (r blockingPDFReader) OpenPDF([]byte) (PDFDocument, error) {
	<-r.release
	return nil, errors.New("released")
}

type fakeWorkbook struct {
	props  map[string]string
	sheets []Sheet
	cells  map[string][][]string
	names  map[string]string
}

func (w *fakeWorkbook) Properties() map[string]string { return w.props }
func (w *fakeWorkbook) Sheets() []Sheet               { return w.sheets }
func (w *fakeWorkbook) DefinedNames() map[string]string {
	return w.names
}
func (w *fakeWorkbook) Close() error { return nil }

func (w *fakeWorkbook) Cells(sheet string, maxRows, maxCols int) ([][]string, error) {
	rows, ok := w.cells[sheet]
	if !ok {
		return nil, errors.New("sheet not found")
	}
	out := make([][]string, 0, maxRows)
	for _, r := range rows[:min(len(rows), maxRows)] {
		out = append(out, fitRow(r, maxCols))
	}
	return out, nil
}

type fakeSpreadsheetReader struct {
	wb *fakeWorkbook
}

func (r fakeSpreadsheetReader) OpenWorkbook([]byte) (Workbook, error) {
	return r.wb, nil
}

type fakeOLEReader struct {
	doc *OLEDocument
	err error
}

func (r fakeOLEReader) ReadOLE([]byte) (*OLEDocument, error) {
	return r.doc, r.err
}

type fakeEXIFReader struct {
	tags []EXIFTag
	err  error
}

func (r fakeEXIFReader) ReadEXIF([]byte) ([]EXIFTag, error) {
	return r.tags, r.err
}

type fakeTagReader struct {
	tags *MediaTags
	err  error
}

func (r fakeTagReader) ReadTags(io.ReadSeeker) (*MediaTags, error) {
	return r.tags, r.err
}

// zipFiles builds an in-memory zip archive from name/content pairs.
func zipFiles(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
