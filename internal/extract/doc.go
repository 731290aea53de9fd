// Package extract pulls structured metadata and plain-text content out of
// downloaded files.
//
// An Engine maps every file type onto exactly one Extractor variant (PDF,
// image, OOXML, legacy Office, OpenDocument, media, HTML or generic). The
// parsing libraries behind the variants are injected through Capabilities,
// so a missing parser degrades its variant to the common metadata instead
// of failing:
//
//	engine := extract.NewEngine(extract.DefaultCapabilities(), extract.WithLogger(logger))
//	md := engine.Extract(ctx, &extract.File{Path: path, Type: model.FileTypePDF, Data: data})
//
// Extraction never returns an error for content problems. A variant that
// stops early records the reason under the "extraction_error" key and keeps
// whatever it already collected. Panics raised by third-party parsers are
// recovered the same way, and every file is bounded by a timeout plus the
// page, sheet, row and cell caps of the individual variants.
package extract
