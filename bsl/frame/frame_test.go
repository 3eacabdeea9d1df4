package frame

import (
	"bytes"
	"testing"
)

func TestXOR(t *testing.T) {
	cases := []struct {
		in   []byte
		want byte
	}{
		{nil, 0x00},
		{[]byte{0x01}, 0x01},
		{[]byte{0x01, 0x02}, 0x03},
		{[]byte{0xff, 0xff}, 0x00},
		{[]byte{0x10, 0x20, 0x30}, 0x00},
	}
	for _, c := range cases {
		if got := XOR(c.in); got != c.want {
			t.Errorf("XOR(%x) = %#x, want %#x", c.in, got, c.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cmd := Command{Group: 0x00, Opcode: OpRead32, Addr: 0xA0001234}
	cmd.Payload[0] = 0x11
	cmd.Payload[8] = 0x99

	first, second := cmd.Encode()
	got, err := Decode(first, second)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Group != cmd.Group || got.Opcode != cmd.Opcode || got.Addr != cmd.Addr {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, cmd)
	}
	if !bytes.Equal(got.Payload[:], cmd.Payload[:]) {
		t.Fatalf("payload mismatch: got %x, want %x", got.Payload, cmd.Payload)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	cmd := Command{Opcode: OpErase, Addr: 0x80000000}
	first, second := cmd.Encode()
	second[7] ^= 0xff // corrupt the trailing checksum byte

	_, err := Decode(first, second)
	if err == nil {
		t.Fatal("expected a checksum error, got nil")
	}
	fe, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fe.Kind != Checksum {
		t.Fatalf("kind = %v, want Checksum", fe.Kind)
	}
}

func TestStatusKind(t *testing.T) {
	cases := []struct {
		status byte
		kind   Kind
		isErr  bool
	}{
		{Success, 0, false},
		{BlockTypeError, BlockType, true},
		{ModeError, Mode, true},
		{ChecksumError, Checksum, true},
		{AddressError, Address, true},
		{EraseError, Erase, true},
		{ProgramError, Program, true},
		{VerificationError, Verification, true},
		{ProtectionError, Protection, true},
		{TimeoutError, Timeout, true},
		{0x01, Mode, true}, // unmapped status falls back to Mode
	}
	for _, c := range cases {
		kind, isErr := StatusKind(c.status)
		if kind != c.kind || isErr != c.isErr {
			t.Errorf("StatusKind(%#x) = (%v, %v), want (%v, %v)", c.status, kind, isErr, c.kind, c.isErr)
		}
	}
}

func TestStatusErrorSuccess(t *testing.T) {
	if err := StatusError(Success); err != nil {
		t.Fatalf("StatusError(Success) = %v, want nil", err)
	}
}

func TestStatusErrorFailure(t *testing.T) {
	err := StatusError(ProgramError)
	if err == nil {
		t.Fatal("expected an error for ProgramError")
	}
	if got := err.Error(); got != "Program: fa" {
		t.Errorf("Error() = %q, want %q", got, "Program: fa")
	}
}

func TestErrorStringNoPayload(t *testing.T) {
	e := &Error{Kind: HandshakeTimeout}
	if got := e.Error(); got != "HandshakeTimeout" {
		t.Errorf("Error() = %q, want %q", got, "HandshakeTimeout")
	}
}
