package extract

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/nao1215/fisgon/internal/model"
)

// mediaFields maps ID3v2 frame IDs (2.3/2.4 and 2.2) and MP4 atoms to
// media_metadata keys.
var mediaFields = map[string]string{
	"TIT2": "title", "TT2": "title",
	"TPE1": "artist", "TP1": "artist",
	"TALB": "album", "TAL": "album",
	"TDRC": "year", "TYER": "year", "TYE": "year",
	"TCON": "genre", "TCO": "genre",
	"TRCK": "track_number", "TRK": "track_number",
	"TPE2": "album_artist", "TP2": "album_artist",
	"TPOS": "disc_number", "TPA": "disc_number",
	"TCOP": "copyright", "TCR": "copyright",
	"TENC": "encoded_by", "TEN": "encoded_by",
	"TSSE": "encoding_software", "TSS": "encoding_software",

	"\xa9nam": "title",
	"\xa9ART": "artist",
	"\xa9alb": "album",
	"\xa9day": "year",
	"\xa9gen": "genre",
	"trkn":    "track_number",
	"\xa9cpy": "copyright",
	"cprt":    "copyright",
	"\xa9too": "encoding_software",
}

type mediaExtractor struct {
	tags TagReader
}

func (*mediaExtractor) Name() string { return VariantMedia }

func (x *mediaExtractor) Extract(_ context.Context, f *File) model.Metadata {
	md := model.Metadata{}
	if x.tags == nil {
		return md
	}

	var info map[string]any
	switch f.Type {
	case model.FileTypeMP3:
		info = mp3StreamInfo(f.Data)
	case model.FileTypeMP4:
		info = mp4StreamInfo(f.Data)
	}
	if len(info) > 0 {
		md[model.CategoryStream] = info
	}

	tags, err := x.tags.ReadTags(bytes.NewReader(f.Data))
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("%s: %v", f.Type, err)
		return md
	}
	if tags == nil {
		return md
	}
	if meta := mediaMetadata(tags.Raw); len(meta) > 0 {
		md[model.CategoryMedia] = meta
	}
	return md
}

func (*mediaExtractor) Content(context.Context, *File) (string, error) {
	return "", ErrNoContent
}

// mediaMetadata maps known frames and atoms. When none are present the
// plain string and integer values are copied as they are.
func mediaMetadata(raw map[string]any) map[string]any {
	meta := make(map[string]any)
	for id, v := range raw {
		key, ok := mediaFields[id]
		if !ok {
			continue
		}
		if s := mediaValue(v); s != "" {
			meta[key] = s
		}
	}
	if len(meta) > 0 {
		return meta
	}
	for id, v := range raw {
		switch v := v.(type) {
		case string:
			putNonEmpty(meta, id, v)
		case int:
			meta[id] = v
		}
	}
	return meta
}

func mediaValue(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(strings.Trim(v, "\x00"))
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// MPEG audio layer III tables, in kbps and Hz.
var (
	mp3BitratesV1 = [15]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mp3BitratesV2 = [15]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
	mp3Rates      = map[byte][3]int{
		3: {44100, 48000, 32000}, // MPEG 1
		2: {22050, 24000, 16000}, // MPEG 2
		0: {11025, 12000, 8000},  // MPEG 2.5
	}
)

// mp3StreamInfo reads the first layer III frame header after the ID3v2
// tag. The duration assumes a constant bitrate.
func mp3StreamInfo(data []byte) map[string]any {
	start := 0
	if len(data) >= 10 && string(data[:3]) == "ID3" {
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		start = 10 + size
		if data[5]&0x10 != 0 {
			start += 10
		}
	}

	for i := start; i+4 <= len(data); i++ {
		if data[i] != 0xff || data[i+1]&0xe0 != 0xe0 {
			continue
		}
		version := (data[i+1] >> 3) & 0x03
		layer := (data[i+1] >> 1) & 0x03
		bitrateIdx := data[i+2] >> 4
		rateIdx := (data[i+2] >> 2) & 0x03
		rates, ok := mp3Rates[version]
		if !ok || layer != 0x01 || bitrateIdx == 0 || bitrateIdx == 0x0f || rateIdx == 0x03 {
			continue
		}
		bitrate := mp3BitratesV2[bitrateIdx]
		if version == 3 {
			bitrate = mp3BitratesV1[bitrateIdx]
		}
		channels := 2
		if data[i+3]>>6 == 0x03 {
			channels = 1
		}
		audioBytes := len(data) - i
		return map[string]any{
			"duration_seconds": float64(audioBytes*8) / float64(bitrate*1000),
			"bitrate":          bitrate * 1000,
			"sample_rate":      rates[rateIdx],
			"channels":         channels,
		}
	}
	return nil
}

// mp4StreamInfo reads the movie header for the duration and the first
// mp4a sample entry for the audio parameters.
func mp4StreamInfo(data []byte) map[string]any {
	info := make(map[string]any)

	if mvhd := bytes.Index(data, []byte("mvhd")); mvhd >= 0 {
		body := data[mvhd+4:]
		var timescale, duration uint64
		switch {
		case len(body) >= 20 && body[0] == 0:
			timescale = uint64(binary.BigEndian.Uint32(body[12:]))
			duration = uint64(binary.BigEndian.Uint32(body[16:]))
		case len(body) >= 32 && body[0] == 1:
			timescale = uint64(binary.BigEndian.Uint32(body[20:]))
			duration = uint64(binary.BigEndian.Uint32(body[24:]))<<32 | uint64(binary.BigEndian.Uint32(body[28:]))
		}
		if timescale > 0 {
			info["duration_seconds"] = float64(duration) / float64(timescale)
		}
	}

	if mp4a := bytes.Index(data, []byte("mp4a")); mp4a >= 0 && mp4a+32 <= len(data) {
		info["channels"] = int(binary.BigEndian.Uint16(data[mp4a+20:]))
		info["sample_rate"] = int(binary.BigEndian.Uint32(data[mp4a+28:]) >> 16)
	}
	return info
}

// tagReader is the TagReader backed by github.com/dhowden/tag.
type tagReader struct{}

func (tagReader) Library() string { return "github.com/dhowden/tag" }

// ReadTags returns nil, nil when the file carries no tags.
func (tagReader) ReadTags(r io.ReadSeeker) (tags *MediaTags, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tags, err = nil, fmt.Errorf("%w: %v", ErrMalformed, rec)
		}
	}()
	m, err := tag.ReadFrom(r)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil, nil
		}
		return nil, err
	}
	return &MediaTags{Format: string(m.Format()), Raw: maps.Clone(m.Raw())}, nil
}
