/*
 * tcbsl - Two-frame BSL command encoding and status decoding.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package frame is the wire format of the Framed BSL Protocol (C4):
// the 16-byte two-CAN-frame command layout with its XOR checksum, and
// the single-byte status reply with its error-kind mapping.
package frame

import (
	"encoding/binary"
	"fmt"
)

// CAN id the BSL listens and replies on.
const ID = 0xC0

// Opcodes, spec §4.4.
const (
	OpErase           = 0x04
	OpCompressedRead  = 0x07
	OpRead32          = 0x08
	OpUncompressedRead = 0x0A
	OpPasswords       = 0x10
	OpSelfTest        = 0x3E
	OpProgramHeader   = 0x00
	OpDataBlock       = 0x01
	OpEndOfTransmit   = 0x02
)

// Result codes, spec §3.
const (
	Success           byte = 0x55
	BlockTypeError    byte = 0xFF
	ModeError         byte = 0xFE
	ChecksumError     byte = 0xFD
	AddressError      byte = 0xFC
	EraseError        byte = 0xFB
	ProgramError      byte = 0xFA
	VerificationError byte = 0xF9
	ProtectionError   byte = 0xF8
	TimeoutError      byte = 0xF7
)

// Kind names an error category, device-reported or host-detected,
// per spec §7.
type Kind int

const (
	_ Kind = iota
	BlockType
	Mode
	Checksum
	Address
	Erase
	Program
	Verification
	Protection
	Timeout
	SequenceMismatch
	InductionFailure
	HandshakeTimeout
	UnexpectedID
	ShortFrame
	IoError
	LZ4Decode
	Subprocess
)

func (k Kind) String() string {
	switch k {
	case BlockType:
		return "BlockType"
	case Mode:
		return "Mode"
	case Checksum:
		return "Checksum"
	case Address:
		return "Address"
	case Erase:
		return "Erase"
	case Program:
		return "Program"
	case Verification:
		return "Verification"
	case Protection:
		return "Protection"
	case Timeout:
		return "Timeout"
	case SequenceMismatch:
		return "SequenceMismatch"
	case InductionFailure:
		return "InductionFailure"
	case HandshakeTimeout:
		return "HandshakeTimeout"
	case UnexpectedID:
		return "UnexpectedId"
	case ShortFrame:
		return "ShortFrame"
	case IoError:
		return "IoError"
	case LZ4Decode:
		return "LZ4DecodeError"
	case Subprocess:
		return "SubprocessError"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with the raw status payload that produced it, so
// callers can render it as a hex failure payload per spec §7.
type Error struct {
	Kind    Kind
	Payload []byte
}

func (e *Error) Error() string {
	if len(e.Payload) == 0 {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %x", e.Kind, e.Payload)
}

// StatusKind maps a single BSL result byte to its named error Kind.
// Success (0x55) returns (0, false) by value-equality, per the
// Design Note resolving the identity-comparison ambiguity in the
// original source.
func StatusKind(status byte) (Kind, bool) {
	switch status {
	case Success:
		return 0, false
	case BlockTypeError:
		return BlockType, true
	case ModeError:
		return Mode, true
	case ChecksumError:
		return Checksum, true
	case AddressError:
		return Address, true
	case EraseError:
		return Erase, true
	case ProgramError:
		return Program, true
	case VerificationError:
		return Verification, true
	case ProtectionError:
		return Protection, true
	case TimeoutError:
		return Timeout, true
	default:
		return Mode, true
	}
}

// StatusError turns a raw status byte into an *Error, or nil on
// success.
func StatusError(status byte) error {
	kind, isErr := StatusKind(status)
	if !isErr {
		return nil
	}
	return &Error{Kind: kind, Payload: []byte{status}}
}

// Command is the 16-byte two-CAN-frame BSL command: opcode group,
// opcode, a big-endian address, up to 9 opcode-specific bytes, and a
// trailing XOR checksum over bytes 1..14.
type Command struct {
	Group    byte
	Opcode   byte
	Addr     uint32
	Payload  [9]byte // opcode-specific bytes 6..14
}

// Encode renders the command as its two 8-byte CAN frames.
func (c Command) Encode() (first, second [8]byte) {
	var buf [16]byte
	buf[0] = c.Group
	buf[1] = c.Opcode
	binary.BigEndian.PutUint32(buf[2:6], c.Addr)
	copy(buf[6:15], c.Payload[:])
	buf[15] = XOR(buf[1:15])

	copy(first[:], buf[0:8])
	copy(second[:], buf[8:16])
	return first, second
}

// Decode parses two received 8-byte frames into a Command, verifying
// the trailing checksum.
func Decode(first, second [8]byte) (Command, error) {
	var buf [16]byte
	copy(buf[0:8], first[:])
	copy(buf[8:16], second[:])

	want := XOR(buf[1:15])
	if buf[15] != want {
		return Command{}, &Error{Kind: Checksum, Payload: buf[:]}
	}

	c := Command{Group: buf[0], Opcode: buf[1], Addr: binary.BigEndian.Uint32(buf[2:6])}
	copy(c.Payload[:], buf[6:15])
	return c, nil
}

// XOR folds b[0]^b[1]^...^b[len(b)-1], matching the BSL checksum rule
// (XOR of bytes 1..14 stored in byte 15, testable property 1).
func XOR(b []byte) byte {
	var acc byte
	for _, v := range b {
		acc ^= v
	}
	return acc
}
