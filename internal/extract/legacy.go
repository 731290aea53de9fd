package extract

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
	"github.com/richardlehane/msoleps/types"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/nao1215/fisgon/internal/model"
)

// oleProperties maps OLE property names to office_metadata keys.
var oleProperties = map[string]string{
	"Author":       "author",
	"LastAuthor":   "last_modified_by",
	"Title":        "title",
	"Subject":      "subject",
	"Keywords":     "keywords",
	"Comments":     "comments",
	"Template":     "template",
	"RevNumber":    "revision",
	"AppName":      "application",
	"CreateTime":   "created",
	"LastSaveTime": "modified",
	"Company":      "company",
	"Category":     "category",
}

// oleOfficeMetadata converts OLE properties to office_metadata keys.
func oleOfficeMetadata(props map[string]string) map[string]any {
	office := make(map[string]any)
	for name, key := range oleProperties {
		putNonEmpty(office, key, props[name])
	}
	return office
}

// legacyExtractor handles the binary Word and PowerPoint formats.
type legacyExtractor struct {
	ole PropertyReader
}

func (*legacyExtractor) Name() string { return VariantLegacy }

func (x *legacyExtractor) Extract(_ context.Context, f *File) model.Metadata {
	md := model.Metadata{}
	if x.ole == nil {
		return md
	}
	md["office_format"] = f.ext()
	md["extraction_note"] = "Legacy Office format, limited extraction"

	doc, err := x.ole.ReadOLE(f.Data)
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("%s: %v", f.Type, err)
		return md
	}
	if office := oleOfficeMetadata(doc.Properties); len(office) > 0 {
		md[model.CategoryOffice] = office
	}
	return md
}

// Content returns the text of a .doc file. The piece table is tried
// first, then a scan for printable runs. When both fail the content is
// empty and no error is returned.
func (x *legacyExtractor) Content(_ context.Context, f *File) (string, error) {
	if f.Type != model.FileTypeDOC {
		return "", ErrNoContent
	}
	if x.ole == nil {
		return "", fmt.Errorf("doc: %w", ErrCapabilityUnavailable)
	}
	doc, err := x.ole.ReadOLE(f.Data)
	if err != nil {
		return "", nil
	}
	word := doc.Streams["WordDocument"]
	if text, err := pieceTableText(word, doc.Streams); err == nil && text != "" {
		return text, nil
	}
	return printableRuns(word, 0x200, 4), nil
}

// Word binary layout.
const (
	wordMagic       = 0xA5EC
	wordFlagsOffset = 0x000A
	wordTableFlag   = 0x0200
	wordFcClx       = 0x01A2
	wordLcbClx      = 0x01A6
	pieceCompressed = 0x40000000
)

var errNoPieceTable = errors.New("no piece table")

// pieceTableText reassembles the document text from the CLX piece table.
func pieceTableText(word []byte, streams map[string][]byte) (string, error) {
	if len(word) < wordLcbClx+4 || binary.LittleEndian.Uint16(word) != wordMagic {
		return "", errNoPieceTable
	}
	tableName := "0Table"
	if binary.LittleEndian.Uint16(word[wordFlagsOffset:])&wordTableFlag != 0 {
		tableName = "1Table"
	}
	table := streams[tableName]
	fc := binary.LittleEndian.Uint32(word[wordFcClx:])
	lcb := binary.LittleEndian.Uint32(word[wordLcbClx:])
	if lcb == 0 || uint64(fc)+uint64(lcb) > uint64(len(table)) {
		return "", errNoPieceTable
	}
	clx := table[fc : fc+lcb]

	// Skip Prc entries until the Pcdt.
	pos := 0
	for pos < len(clx) && clx[pos] == 0x01 {
		if pos+3 > len(clx) {
			return "", errNoPieceTable
		}
		pos += 3 + int(binary.LittleEndian.Uint16(clx[pos+1:]))
	}
	if pos+5 > len(clx) || clx[pos] != 0x02 {
		return "", errNoPieceTable
	}
	plc := clx[pos+5:]
	size := int(binary.LittleEndian.Uint32(clx[pos+1:]))
	if size < 4 || size > len(plc) {
		return "", errNoPieceTable
	}
	n := (size - 4) / 12
	cps := plc[:(n+1)*4]
	pcds := plc[(n+1)*4:]

	utf16le := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	cp1252 := charmap.Windows1252.NewDecoder()

	var sb strings.Builder
	for i := range n {
		start := binary.LittleEndian.Uint32(cps[i*4:])
		end := binary.LittleEndian.Uint32(cps[(i+1)*4:])
		if end <= start || i*8+6 > len(pcds) {
			continue
		}
		chars := int(end - start)
		fcPiece := binary.LittleEndian.Uint32(pcds[i*8+2:])

		var (
			raw []byte
			dec interface{ Bytes([]byte) ([]byte, error) }
		)
		if fcPiece&pieceCompressed != 0 {
			off := int(fcPiece&^pieceCompressed) / 2
			if off+chars > len(word) {
				continue
			}
			raw, dec = word[off:off+chars], cp1252
		} else {
			off := int(fcPiece)
			if off+chars*2 > len(word) {
				continue
			}
			raw, dec = word[off:off+chars*2], utf16le
		}
		text, err := dec.Bytes(raw)
		if err != nil {
			continue
		}
		sb.Write(text)
	}
	return cleanWordText(sb.String()), nil
}

var wordControl = strings.NewReplacer(
	"\r", "\n",
	"\x0b", "\n",
	"\x0c", "\n",
	"\x07", "\t",
	"\x13", "",
	"\x14", "",
	"\x15", "",
)

func cleanWordText(s string) string {
	return strings.TrimSpace(wordControl.Replace(s))
}

// printableRuns collects runs of at least minRun printable ASCII bytes
// found after offset.
func printableRuns(data []byte, offset, minRun int) string {
	if offset >= len(data) {
		return ""
	}
	var (
		runs []string
		cur  []byte
	)
	flush := func() {
		if len(cur) >= minRun {
			runs = append(runs, strings.TrimSpace(string(cur)))
		}
		cur = cur[:0]
	}
	for _, b := range data[offset:] {
		if b >= 0x20 && b < 0x7f || b == '\t' || b == '\n' {
			cur = append(cur, b)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(strings.Join(runs, " "))
}

// oleTextStreams are the streams kept in OLEDocument.Streams.
var oleTextStreams = map[string]bool{
	"WordDocument": true,
	"0Table":       true,
	"1Table":       true,
}

// oleReader is the PropertyReader backed by github.com/richardlehane/mscfb
// and github.com/richardlehane/msoleps.
type oleReader struct{}

func (oleReader) Library() string {
	return "github.com/richardlehane/mscfb, github.com/richardlehane/msoleps"
}

func (oleReader) ReadOLE(data []byte) (doc *OLEDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	r, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	doc = &OLEDocument{
		Properties: make(map[string]string),
		Streams:    make(map[string][]byte),
	}
	props := msoleps.New()
	for entry, err := r.Next(); err == nil; entry, err = r.Next() {
		switch {
		case msoleps.IsMSOLEPS(entry.Initial):
			if err := props.Reset(entry); err != nil {
				continue
			}
			for _, p := range props.Property {
				if v := propertyValue(p); v != "" {
					doc.Properties[p.Name] = v
				}
			}
		case oleTextStreams[entry.Name] && len(entry.Path) == 0:
			b, err := io.ReadAll(io.LimitReader(entry, maxPartSize))
			if err == nil {
				doc.Streams[entry.Name] = b
			}
		}
	}
	return doc, nil
}

// propertyValue formats a property. Timestamps use the common layout and
// unset timestamps are dropped.
func propertyValue(p *msoleps.Property) string {
	if p == nil || p.T == nil {
		return ""
	}
	if ft, ok := p.T.(types.FileTime); ok {
		t := ft.Time()
		if t.Year() < 1980 {
			return ""
		}
		return t.UTC().Format(isoLayout)
	}
	return strings.TrimSpace(strings.Trim(p.String(), "\x00"))
}
