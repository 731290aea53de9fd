package extract

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/nao1215/fisgon/internal/model"
)

// id3Title returns an ID3v2.3 tag holding a single TIT2 frame.
func id3Title(title string) []byte {
	frame := append([]byte{0x00}, title...)
	var b bytes.Buffer
	b.WriteString("ID3")
	b.Write([]byte{0x03, 0x00, 0x00})
	size := 10 + len(frame)
	for _, shift := range []int{21, 14, 7, 0} {
		b.WriteByte(byte(size>>shift) & 0x7f)
	}
	b.WriteString("TIT2")
	_ = binary.Write(&b, binary.BigEndian, uint32(len(frame)))
	b.Write([]byte{0x00, 0x00})
	b.Write(frame)
	return b.Bytes()
}

// mp3Frames returns audio bytes starting with an MPEG 1 layer III mono
// frame header at 128 kbps and 44.1 kHz.
func mp3Frames(n int) []byte {
	audio := make([]byte, n)
	copy(audio, []byte{0xff, 0xfb, 0x90, 0xc0})
	return audio
}

func TestMP3StreamInfo(t *testing.T) {
	t.Parallel()

	data := append(id3Title("Canción"), mp3Frames(16000)...)
	info := mp3StreamInfo(data)
	if info == nil {
		t.Fatal("expected stream info")
	}
	if info["bitrate"] != 128000 || info["sample_rate"] != 44100 || info["channels"] != 1 {
		t.Errorf("unexpected stream_info %v", info)
	}
	if d := info["duration_seconds"].(float64); math.Abs(d-1.0) > 1e-9 {
		t.Errorf("duration_seconds = %v", d)
	}

	if mp3StreamInfo([]byte("no frames here")) != nil {
		t.Error("expected nil without a frame header")
	}
}

func TestMP4StreamInfo(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	b.WriteString("\x00\x00\x00\x6cmvhd")
	b.Write([]byte{0, 0, 0, 0}) // version and flags
	b.Write(make([]byte, 8))    // creation and modification time
	_ = binary.Write(&b, binary.BigEndian, uint32(1000))
	_ = binary.Write(&b, binary.BigEndian, uint32(5500))
	b.WriteString("\x00\x00\x00\x24mp4a")
	b.Write(make([]byte, 16))
	_ = binary.Write(&b, binary.BigEndian, uint16(2))
	b.Write(make([]byte, 6))
	_ = binary.Write(&b, binary.BigEndian, uint32(48000<<16))

	info := mp4StreamInfo(b.Bytes())
	if info["duration_seconds"] != 5.5 || info["channels"] != 2 || info["sample_rate"] != 48000 {
		t.Errorf("unexpected stream_info %v", info)
	}
}

func TestMediaExtract(t *testing.T) {
	t.Parallel()

	tags := &MediaTags{Format: "ID3v2.3", Raw: map[string]any{
		"TIT2": "Canción\x00",
		"TPE1": "Ana Soto",
		"TRCK": "3/12",
		"TT2":  "",
		"APIC": []byte{1, 2, 3},
	}}
	x := &mediaExtractor{tags: fakeTagReader{tags: tags}}
	md := x.Extract(context.Background(), &File{Type: model.FileTypeMP3, Data: mp3Frames(1000)})
	if md.HasError() {
		t.Fatalf("unexpected error %q", md.String(model.KeyExtractionError))
	}

	meta := md.Section(model.CategoryMedia)
	if meta["title"] != "Canción" || meta["artist"] != "Ana Soto" || meta["track_number"] != "3/12" {
		t.Errorf("unexpected media_metadata %v", meta)
	}
	if len(meta) != 3 {
		t.Errorf("expected 3 keys, got %v", meta)
	}
	if md.Section(model.CategoryStream) == nil {
		t.Error("expected stream_info")
	}
}

func TestMediaMetadataMP4AndGeneric(t *testing.T) {
	t.Parallel()

	meta := mediaMetadata(map[string]any{"\xa9nam": "Clip", "trkn": 4, "cprt": "ACME"})
	if meta["title"] != "Clip" || meta["track_number"] != "4" || meta["copyright"] != "ACME" {
		t.Errorf("unexpected mp4 mapping %v", meta)
	}

	generic := mediaMetadata(map[string]any{"vendor": "Lavf", "tempo": 120, "blob": []byte{1}})
	if generic["vendor"] != "Lavf" || generic["tempo"] != 120 || len(generic) != 2 {
		t.Errorf("unexpected generic mapping %v", generic)
	}
}

func TestMediaExtractTagError(t *testing.T) {
	t.Parallel()

	x := &mediaExtractor{tags: fakeTagReader{err: errors.New("invalid frame size")}}
	md := x.Extract(context.Background(), &File{Type: model.FileTypeMP3, Data: mp3Frames(1000)})
	if md.String(model.KeyExtractionError) != "mp3: invalid frame size" {
		t.Errorf("unexpected error %q", md.String(model.KeyExtractionError))
	}
	if md.Section(model.CategoryStream) == nil {
		t.Error("stream_info must be kept")
	}
}

func TestTagReader(t *testing.T) {
	t.Parallel()

	t.Run("id3v2", func(t *testing.T) {
		t.Parallel()
		data := append(id3Title("Hola"), mp3Frames(512)...)
		tags, err := (tagReader{}).ReadTags(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if tags == nil || tags.Raw["TIT2"] != "Hola" {
			t.Errorf("unexpected tags %+v", tags)
		}
	})

	t.Run("no tags", func(t *testing.T) {
		t.Parallel()
		tags, err := (tagReader{}).ReadTags(bytes.NewReader(make([]byte, 256)))
		if err != nil || tags != nil {
			t.Errorf("expected nil, nil; got %v, %v", tags, err)
		}
	})
}
