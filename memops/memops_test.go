package memops

import (
	"bytes"
	"testing"

	"github.com/wrongbaud/tcbsl/hw/canlink"
	"github.com/wrongbaud/tcbsl/sim"
)

func newPair() (*Ops, *sim.Device) {
	host, devLink := canlink.NewSimPair()
	return New(host), sim.NewDevice(devLink)
}

func TestWrite32AndRead32(t *testing.T) {
	ops, dev := newPair()

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()
	if err := ops.Write32(0xD0000100, 0xCAFEBABE); err != nil {
		t.Fatalf("Write32: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve (write): %v", err)
	}

	go func() { done <- dev.Serve() }()
	got, err := ops.Read32(0xD0000100)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve (read): %v", err)
	}
	if got != 0xCAFEBABE {
		t.Fatalf("Read32 = %#x, want %#x", got, 0xCAFEBABE)
	}
}

func TestErase(t *testing.T) {
	ops, dev := newPair()

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()
	if err := ops.Erase(0xA0080000, 0x80000); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestProgramFileStoresPages(t *testing.T) {
	ops, dev := newPair()

	const addr = 0xA0080000
	source := make([]byte, PageSize*2)
	for i := range source {
		source[i] = byte(i)
	}

	serverDone := make(chan error, 1)
	go func() {
		if err := dev.Serve(); err != nil { // program header
			serverDone <- err
			return
		}
		for i := 0; i < 2; i++ {
			if _, err := dev.ServePageWrite(addr + uint32(i*PageSize)); err != nil {
				serverDone <- err
				return
			}
		}
		serverDone <- dev.Serve() // end of transmission
	}()

	if err := ops.ProgramFile(addr, int64(len(source)), bytes.NewReader(source), nil); err != nil {
		t.Fatalf("ProgramFile: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server side: %v", err)
	}

	stored := dev.ReadMemory(addr)
	if !bytes.Equal(stored, source[:PageSize]) {
		t.Fatalf("first page mismatch: stored %d bytes", len(stored))
	}
}

func TestReadUncompressedStopsAtRequestedSize(t *testing.T) {
	ops, dev := newPair()

	const addr = 0xA0040000
	const size = 400 // spans two 256-byte device chunks
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(0x10 + i%16)
	}
	dev.WriteMemory(addr, payload)

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()

	var out bytes.Buffer
	if err := ops.ReadUncompressed(addr, size, &out); err != nil {
		t.Fatalf("ReadUncompressed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Len() != size {
		t.Fatalf("read %d bytes, want %d", out.Len(), size)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatal("read-back content does not match written content")
	}
}

func TestReadCompressed(t *testing.T) {
	ops, dev := newPair()

	const addr = 0xA0100000
	// ReadCompressed LZ4-decodes what the device sends, so the source
	// must be a valid LZ4 block; a hand-built literal-only block keeps
	// the fixture independent of the compressor.
	plain := make([]byte, 64)
	for i := range plain {
		plain[i] = 0x42
	}

	// Build a literal-only LZ4 block by hand: token byte with a
	// literal-length nibble, the literal bytes, no match.
	compressed := buildLiteralLZ4Block(plain)
	dev.SetCompressedSource(addr, compressed)

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()

	var out bytes.Buffer
	if err := ops.ReadCompressed(addr, uint32(len(plain)), &out); err != nil {
		t.Fatalf("ReadCompressed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plain) {
		t.Fatalf("decompressed mismatch: got %d bytes, want %d", out.Len(), len(plain))
	}
}

func TestReadCompressedMultiRound(t *testing.T) {
	ops, dev := newPair()

	const addr = 0xA0100000
	first := bytes.Repeat([]byte{0x11}, 64)
	second := bytes.Repeat([]byte{0x22}, 48)

	dev.SetCompressedSource(addr, buildLiteralLZ4Block(first))
	dev.SetCompressedSource(addr, buildLiteralLZ4Block(second))

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()

	var out bytes.Buffer
	want := append(append([]byte{}, first...), second...)
	if err := ops.ReadCompressed(addr, uint32(len(want)), &out); err != nil {
		t.Fatalf("ReadCompressed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("multi-round decompressed mismatch: got %d bytes, want %d", out.Len(), len(want))
	}
}

func TestReadUncompressedWithFramePadding(t *testing.T) {
	ops, dev := newPair()

	const addr = 0xA0050000
	// 260 bytes: one full 256-byte round, then a 4-byte final round
	// whose last frame still carries a full 6-byte tick, exercising
	// the descriptor-declared truncation rather than content-sniffing.
	const size = 260
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(0x50 + i%16)
	}
	dev.WriteMemory(addr, payload)

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()

	var out bytes.Buffer
	if err := ops.ReadUncompressed(addr, size, &out); err != nil {
		t.Fatalf("ReadUncompressed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("read-back content does not match written content (got %d bytes, want %d)", out.Len(), size)
	}
}

func TestReadUncompressedPreservesTrailing0xAAByte(t *testing.T) {
	ops, dev := newPair()

	const addr = 0xA0060000
	const size = 4
	// The real final byte is 0xAA; a content-sniffing strip would
	// wrongly drop it. Truncating by the descriptor's declared chunk
	// size must keep it.
	payload := []byte{0x01, 0x02, 0x03, 0xAA}
	dev.WriteMemory(addr, payload)

	done := make(chan error, 1)
	go func() { done <- dev.Serve() }()

	var out bytes.Buffer
	if err := ops.ReadUncompressed(addr, size, &out); err != nil {
		t.Fatalf("ReadUncompressed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("got %x, want %x (trailing 0xAA must survive)", out.Bytes(), payload)
	}
}

// buildLiteralLZ4Block encodes data as a single literal-only LZ4
// sequence block (token high nibble = literal length, no match
// bytes), valid input for lz4.UncompressBlock.
func buildLiteralLZ4Block(data []byte) []byte {
	var out []byte
	litLen := len(data)
	if litLen < 15 {
		out = append(out, byte(litLen<<4))
	} else {
		out = append(out, 0xF0)
		rem := litLen - 15
		for rem >= 255 {
			out = append(out, 0xFF)
			rem -= 255
		}
		out = append(out, byte(rem))
	}
	out = append(out, data...)
	return out
}
