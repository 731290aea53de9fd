package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

// DefaultTimeout bounds the extraction of a single file. It matches the
// network timeout of a fetch.
const DefaultTimeout = 30 * time.Second

// isoLayout is the timestamp layout of the common metadata keys.
const isoLayout = "2006-01-02T15:04:05"

// Engine selects the extractor variant for each file and runs it with
// panic recovery and a timeout.
type Engine struct {
	caps    Capabilities
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	pdf     *pdfExtractor
	image   *imageExtractor
	ooxml   *ooxmlExtractor
	xlsx    *spreadsheetExtractor
	xls     *spreadsheetExtractor
	legacy  *legacyExtractor
	odf     *odfExtractor
	media   *mediaExtractor
	html    *htmlExtractor
	generic *genericExtractor
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for extraction failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout sets the per-file extraction timeout. Zero or less disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithClock sets the clock used for extracted_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an engine using the given capabilities.
func NewEngine(caps Capabilities, opts ...Option) *Engine {
	e := &Engine{
		caps:    caps,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.pdf = &pdfExtractor{reader: caps.PDF}
	e.image = &imageExtractor{exif: caps.EXIF}
	e.ooxml = &ooxmlExtractor{xml: caps.XML}
	e.xlsx = &spreadsheetExtractor{primary: caps.Spreadsheet, legacy: false}
	e.xls = &spreadsheetExtractor{primary: caps.LegacySpreadsheet, fallback: caps.Spreadsheet, ole: caps.OLE, legacy: true}
	e.legacy = &legacyExtractor{ole: caps.OLE}
	e.odf = &odfExtractor{xml: caps.XML, logger: e.logger}
	e.media = &mediaExtractor{tags: caps.Media}
	e.html = &htmlExtractor{}
	e.generic = &genericExtractor{}
	return e
}

// Capabilities returns the capabilities the engine was built with.
func (e *Engine) Capabilities() Capabilities {
	return e.caps
}

// For returns the extractor variant for t. The mapping is total: unknown
// types get the generic extractor.
func (e *Engine) For(t model.FileType) Extractor {
	switch t {
	case model.FileTypePDF:
		return e.pdf
	case model.FileTypeJPG, model.FileTypeJPEG, model.FileTypePNG, model.FileTypeGIF, model.FileTypeTIFF:
		return e.image
	case model.FileTypeDOCX, model.FileTypePPTX:
		return e.ooxml
	case model.FileTypeXLSX:
		return e.xlsx
	case model.FileTypeXLS:
		return e.xls
	case model.FileTypeDOC, model.FileTypePPT:
		return e.legacy
	case model.FileTypeODT, model.FileTypeODS, model.FileTypeODP:
		return e.odf
	case model.FileTypeMP3, model.FileTypeMP4:
		return e.media
	case model.FileTypeHTML:
		return e.html
	default:
		return e.generic
	}
}

// Extract returns the common metadata of f merged with the output of its
// variant. It never fails; a panic, timeout or cancellation is recorded
// under model.KeyExtractionError.
func (e *Engine) Extract(ctx context.Context, f *File) model.Metadata {
	md := e.common(f)
	x := e.For(f.Type)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan model.Metadata, 1)
	go func() {
		done <- e.run(ctx, x, f)
	}()

	select {
	case out := <-done:
		maps.Copy(md, out)
	case <-ctx.Done():
		md[model.KeyExtractionError] = e.timeoutReason(ctx)
		e.logger.Warn("metadata extraction abandoned",
			"variant", x.Name(), "file", f.Path, "reason", md[model.KeyExtractionError])
	}

	if msg := md.String(model.KeyExtractionError); msg != "" {
		e.logger.Debug("metadata extraction incomplete", "variant", x.Name(), "file", f.Path, "error", msg)
	}
	return md
}

// run calls the variant, turning a panic into an extraction error.
func (e *Engine) run(ctx context.Context, x Extractor, f *File) (md model.Metadata) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extractor panicked", "variant", x.Name(), "file", f.Path,
				"panic", r, "stack", string(debug.Stack()))
			md = model.Metadata{model.KeyExtractionError: fmt.Sprintf("%s: %v", ErrMalformed, r)}
		}
	}()
	md = x.Extract(ctx, f)
	if md == nil {
		md = model.Metadata{}
	}
	return md
}

func (e *Engine) timeoutReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s after %s", ErrTimeout, e.timeout)
	}
	return ctx.Err().Error()
}

// Content returns the full-text rendition of f under the same timeout
// and panic recovery as Extract.
func (e *Engine) Content(ctx context.Context, f *File) (string, error) {
	x := e.For(f.Type)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: fmt.Errorf("%w: %v", ErrMalformed, r)}
			}
			done <- res
		}()
		res.text, res.err = x.Content(ctx, f)
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		return "", ctx.Err()
	}
}

// common returns the keys shared by every file.
func (e *Engine) common(f *File) model.Metadata {
	sum := sha256.Sum256(f.Data)
	md := model.Metadata{
		"file_path":        f.Path,
		"file_url":         f.URL,
		"referrer":         f.Referrer,
		"file_size":        int64(len(f.Data)),
		"file_hash_sha256": hex.EncodeToString(sum[:]),
		"extracted_at":     e.now().Format(isoLayout),
	}
	if !f.CreatedAt.IsZero() {
		md["created_at"] = f.CreatedAt.Format(isoLayout)
	}
	if !f.ModifiedAt.IsZero() {
		md["modified_at"] = f.ModifiedAt.Format(isoLayout)
	}
	return md
}

// genericExtractor handles files without a dedicated variant. It adds
// nothing to the common metadata.
type genericExtractor struct{}

func (*genericExtractor) Name() string { return VariantGeneric }

func (*genericExtractor) Extract(context.Context, *File) model.Metadata {
	return model.Metadata{}
}

func (*genericExtractor) Content(context.Context, *File) (string, error) {
	return "", ErrNoContent
}
