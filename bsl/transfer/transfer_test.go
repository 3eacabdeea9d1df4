package transfer

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/wrongbaud/tcbsl/bsl/frame"
)

func TestNewPageBufferStartsAtOne(t *testing.T) {
	p := NewPageBuffer()
	if err := p.Append(1, []byte{0xAA}); err != nil {
		t.Fatalf("Append(1, ...) = %v, want nil", err)
	}
	if err := p.Append(2, []byte{0xBB}); err != nil {
		t.Fatalf("Append(2, ...) = %v, want nil", err)
	}
	if got, want := p.Bytes(), []byte{0xAA, 0xBB}; !bytes.Equal(got, want) {
		t.Fatalf("Bytes() = %x, want %x", got, want)
	}
}

func TestPageBufferRejectsGap(t *testing.T) {
	p := NewPageBuffer()
	if err := p.Append(1, []byte{0x01}); err != nil {
		t.Fatalf("Append(1, ...): %v", err)
	}
	err := p.Append(3, []byte{0x02}) // skips 2
	if err == nil {
		t.Fatal("expected a sequence mismatch error")
	}
	fe, ok := err.(*frame.Error)
	if !ok {
		t.Fatalf("expected *frame.Error, got %T", err)
	}
	if fe.Kind != frame.SequenceMismatch {
		t.Fatalf("kind = %v, want SequenceMismatch", fe.Kind)
	}
}

func TestPageBufferWrapsModulo256(t *testing.T) {
	p := &PageBuffer{wantSeq: 255}
	if err := p.Append(255, []byte{0x01}); err != nil {
		t.Fatalf("Append(255, ...): %v", err)
	}
	// 255 + 1 overflows a byte back to 0, not 256.
	if err := p.Append(0, []byte{0x02}); err != nil {
		t.Fatalf("Append(0, ...) after wrap: %v", err)
	}
	if err := p.Append(1, []byte{0x03}); err != nil {
		t.Fatalf("Append(1, ...) after wrap: %v", err)
	}
}

func TestDecompressLZ4RoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("tcbsl-page-payload-bytes"), 12)

	dst := make([]byte, lz4.CompressBlockBound(len(original)))
	var c lz4.Compressor
	n, err := c.CompressBlock(original, dst)
	if err != nil {
		t.Fatalf("CompressBlock: %v", err)
	}
	compressed := dst[:n]

	got, err := DecompressLZ4(compressed, len(original))
	if err != nil {
		t.Fatalf("DecompressLZ4: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatalf("decompressed mismatch: got %d bytes, want %d", len(got), len(original))
	}
}

func TestDecompressLZ4InvalidBlock(t *testing.T) {
	_, err := DecompressLZ4([]byte{0xff, 0xff, 0xff, 0xff}, 256)
	if err == nil {
		t.Fatal("expected a decode error for garbage input")
	}
	fe, ok := err.(*frame.Error)
	if !ok {
		t.Fatalf("expected *frame.Error, got %T", err)
	}
	if fe.Kind != frame.LZ4Decode {
		t.Fatalf("kind = %v, want LZ4Decode", fe.Kind)
	}
}

func TestReaderNextPageFullPages(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, PageSize*2)
	rd := NewReader(bytes.NewReader(data), 0)

	page, err := rd.NextPage()
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != PageSize {
		t.Fatalf("first page len = %d, want %d", len(page), PageSize)
	}

	page, err = rd.NextPage()
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page) != PageSize {
		t.Fatalf("second page len = %d, want %d", len(page), PageSize)
	}
}

func TestReaderNextPageShortFinal(t *testing.T) {
	data := append(bytes.Repeat([]byte{0x02}, PageSize), []byte{0x03, 0x03, 0x03}...)
	rd := NewReader(bytes.NewReader(data), 0)

	if _, err := rd.NextPage(); err != nil {
		t.Fatalf("first page: %v", err)
	}

	page, err := rd.NextPage()
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("short final page err = %v, want io.ErrUnexpectedEOF", err)
	}
	if len(page) != 3 {
		t.Fatalf("short final page len = %d, want 3", len(page))
	}
}

func TestReaderNextPageCustomSize(t *testing.T) {
	rd := NewReader(strings.NewReader("abcdef"), 3)
	page, err := rd.NextPage()
	if err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if string(page) != "abc" {
		t.Fatalf("page = %q, want %q", page, "abc")
	}
}
