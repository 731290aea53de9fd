package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	_ "golang.org/x/image/tiff" // register TIFF decoder

	"github.com/nao1215/fisgon/internal/model"
)

type imageExtractor struct {
	exif EXIFReader
}

func (*imageExtractor) Name() string { return VariantImage }

func (x *imageExtractor) Extract(_ context.Context, f *File) model.Metadata {
	md := model.Metadata{}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("image: %v", err)
		return md
	}
	md[model.CategoryImageInfo] = map[string]any{
		"format": strings.ToUpper(format),
		"mode":   colorMode(cfg.ColorModel),
		"width":  cfg.Width,
		"height": cfg.Height,
	}

	if x.exif == nil {
		return md
	}
	tags, err := x.exif.ReadEXIF(f.Data)
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("exif: %v", err)
		return md
	}
	if meta := exifMetadata(tags); len(meta) > 0 {
		md[model.CategoryEXIF] = meta
	}
	return md
}

func (*imageExtractor) Content(context.Context, *File) (string, error) {
	return "", ErrNoContent
}

// exifMetadata maps decoded EXIF tags onto the exif_metadata keys.
// DateTimeOriginal wins over DateTime.
func exifMetadata(tags []EXIFTag) map[string]any {
	meta := make(map[string]any)
	var original, modified string
	gps := make(map[string]EXIFTag)

	for _, t := range tags {
		switch t.Name {
		case "DateTimeOriginal":
			original = t.Formatted
		case "DateTime":
			modified = t.Formatted
		case "Make":
			putNonEmpty(meta, "camera_make", t.Formatted)
		case "Model":
			putNonEmpty(meta, "camera_model", t.Formatted)
		case "Software":
			putNonEmpty(meta, "software", t.Formatted)
		case "Artist":
			putNonEmpty(meta, "artist", t.Formatted)
		case "Copyright":
			putNonEmpty(meta, "copyright", t.Formatted)
		case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef":
			gps[t.Name] = t
		}
	}

	switch {
	case strings.TrimSpace(original) != "":
		meta["datetime_original"] = strings.TrimSpace(original)
	case strings.TrimSpace(modified) != "":
		meta["datetime_original"] = strings.TrimSpace(modified)
	}
	if coords, ok := gpsCoordinates(gps); ok {
		meta["gps_coordinates"] = coords
	}
	return meta
}

// gpsCoordinates converts the GPS tags to signed decimal degrees.
func gpsCoordinates(gps map[string]EXIFTag) (map[string]any, bool) {
	lat, ok := dms(gps["GPSLatitude"].Value)
	if !ok {
		return nil, false
	}
	lon, ok := dms(gps["GPSLongitude"].Value)
	if !ok {
		return nil, false
	}
	latitude := DMSToDecimal(lat[0], lat[1], lat[2], gps["GPSLatitudeRef"].Formatted)
	longitude := DMSToDecimal(lon[0], lon[1], lon[2], gps["GPSLongitudeRef"].Formatted)
	return map[string]any{
		"latitude":           latitude,
		"longitude":          longitude,
		"coordinates_string": fmt.Sprintf("(%.6f, %.6f)", latitude, longitude),
	}, true
}

func dms(v any) ([3]float64, bool) {
	var out [3]float64
	values, ok := v.([]float64)
	if !ok || len(values) < 3 {
		return out, false
	}
	copy(out[:], values[:3])
	return out, true
}

// DMSToDecimal converts degrees, minutes and seconds to decimal degrees.
// The result is negative for the "S" and "W" hemispheres.
func DMSToDecimal(degrees, minutes, seconds float64, ref string) float64 {
	v := degrees + minutes/60 + seconds/3600
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		return -v
	default:
		return v
	}
}

// colorMode names a color model the way image tools report a mode.
func colorMode(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	switch m {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.NRGBAModel, color.NRGBA64Model:
		return "RGBA"
	case color.CMYKModel:
		return "CMYK"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	default:
		return "RGB"
	}
}

// goEXIFReader is the EXIFReader backed by github.com/dsoprea/go-exif/v3.
type goEXIFReader struct{}

func (goEXIFReader) Library() string { return "github.com/dsoprea/go-exif/v3" }

func (goEXIFReader) ReadEXIF(data []byte) (tags []EXIFTag, err error) {
	defer func() {
		if r := recover(); r != nil {
			tags, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, err
	}
	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return nil, err
	}

	tags = make([]EXIFTag, 0, len(entries))
	for _, e := range entries {
		tag := EXIFTag{Name: e.TagName, Value: e.Value, Formatted: strings.TrimSpace(e.Formatted)}
		if rs, ok := e.Value.([]exifcommon.Rational); ok {
			values := make([]float64, len(rs))
			for i, r := range rs {
				if r.Denominator != 0 {
					values[i] = float64(r.Numerator) / float64(r.Denominator)
				}
			}
			tag.Value = values
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
