package model

import "slices"

// FileType is the inferred type of a URL or downloaded file.
// Values are lowercase file extensions, with "html" for pages.
type FileType string

// Known file types.
const (
	FileTypeHTML FileType = "html"
	FileTypePDF  FileType = "pdf"
	FileTypeDOC  FileType = "doc"
	FileTypeDOCX FileType = "docx"
	FileTypeXLS  FileType = "xls"
	FileTypeXLSX FileType = "xlsx"
	FileTypePPT  FileType = "ppt"
	FileTypePPTX FileType = "pptx"
	FileTypeODT  FileType = "odt"
	FileTypeODS  FileType = "ods"
	FileTypeODP  FileType = "odp"
	FileTypeJPG  FileType = "jpg"
	FileTypeJPEG FileType = "jpeg"
	FileTypePNG  FileType = "png"
	FileTypeGIF  FileType = "gif"
	FileTypeTIFF FileType = "tiff"
	FileTypeMP3  FileType = "mp3"
	FileTypeMP4  FileType = "mp4"
	FileTypeXML  FileType = "xml"
	FileTypeJSON FileType = "json"
	FileTypeTXT  FileType = "txt"
	FileTypeCSV  FileType = "csv"
)

// KnownFileTypes lists every file type recognised by extension.
// HTML is not included because it is the classification default.
var KnownFileTypes = []FileType{
	FileTypePDF, FileTypeDOC, FileTypeDOCX, FileTypeXLS, FileTypeXLSX,
	FileTypePPT, FileTypePPTX, FileTypeODT, FileTypeODS, FileTypeODP,
	FileTypeJPG, FileTypeJPEG, FileTypePNG, FileTypeGIF, FileTypeTIFF,
	FileTypeMP3, FileTypeMP4, FileTypeXML, FileTypeJSON, FileTypeTXT, FileTypeCSV,
}

// DefaultAllowedFileTypes is used when a session is created without an
// explicit allow-list: documents, images and media, but not plain data files.
var DefaultAllowedFileTypes = []FileType{
	FileTypePDF, FileTypeDOC, FileTypeDOCX, FileTypeXLS, FileTypeXLSX,
	FileTypePPT, FileTypePPTX, FileTypeODT, FileTypeODS, FileTypeODP,
	FileTypeJPG, FileTypeJPEG, FileTypePNG, FileTypeGIF, FileTypeTIFF,
	FileTypeMP3, FileTypeMP4,
}

// String implements fmt.Stringer.
func (f FileType) String() string {
	return string(f)
}

// IsKnown reports whether f is HTML or one of KnownFileTypes.
func (f FileType) IsKnown() bool {
	return f == FileTypeHTML || slices.Contains(KnownFileTypes, f)
}

// IsImage reports whether f is a raster image format.
func (f FileType) IsImage() bool {
	switch f {
	case FileTypeJPG, FileTypeJPEG, FileTypePNG, FileTypeGIF, FileTypeTIFF:
		return true
	default:
		return false
	}
}
