/*
 * tcbsl - Memory read/write/erase/program primitives over the Framed BSL.
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

// Package memops implements the memory-operation primitives (C8) that
// ride on top of the Framed BSL protocol once the device is resident
// in SRAM: 32-bit read/write, erase, compressed/uncompressed bulk
// read, file programming, and password submission.
package memops

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/wrongbaud/tcbsl/bsl/frame"
	"github.com/wrongbaud/tcbsl/bsl/transfer"
	"github.com/wrongbaud/tcbsl/hw/canlink"
)

const (
	// PageSize is the program-flash page size (spec §4.4).
	PageSize = transfer.PageSize

	defaultTimeout = 2 * time.Second
)

// ProgressFunc reports done/total bytes on long-running operations.
type ProgressFunc func(done, total int64)

// Ops drives memory operations over a CAN link already parked on the
// BSL command id.
type Ops struct {
	can     canlink.Link
	timeout time.Duration
}

// New wraps a CAN link with default timeouts.
func New(can canlink.Link) *Ops {
	return &Ops{can: can, timeout: defaultTimeout}
}

func (o *Ops) sendCommand(cmd frame.Command) error {
	first, second := cmd.Encode()
	if err := o.can.Send(canlink.Frame{ID: frame.ID, Data: first[:]}); err != nil {
		return err
	}
	return o.can.Send(canlink.Frame{ID: frame.ID, Data: second[:]})
}

func (o *Ops) readStatus() (byte, error) {
	frm, err := o.can.Recv(o.timeout)
	if err != nil {
		return 0, fmt.Errorf("memops: waiting for status: %w", err)
	}
	if len(frm.Data) == 0 {
		return 0, &frame.Error{Kind: frame.ShortFrame}
	}
	return frm.Data[0], nil
}

// Read32 reads one 32-bit word at addr. The device replies with a
// single status frame carrying the result code in byte 0 and the
// big-endian value in bytes 1..4.
func (o *Ops) Read32(addr uint32) (uint32, error) {
	cmd := frame.Command{Opcode: frame.OpRead32, Addr: addr}
	if err := o.sendCommand(cmd); err != nil {
		return 0, fmt.Errorf("memops: read32 send: %w", err)
	}

	frm, err := o.can.Recv(o.timeout)
	if err != nil {
		return 0, fmt.Errorf("memops: read32 reply: %w", err)
	}
	if len(frm.Data) < 5 {
		return 0, &frame.Error{Kind: frame.ShortFrame, Payload: frm.Data}
	}
	if err := frame.StatusError(frm.Data[0]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(frm.Data[1:5]), nil
}

// Write32 writes value to addr and waits for a 0x55 acknowledgement.
func (o *Ops) Write32(addr, value uint32) error {
	var payload [9]byte
	binary.BigEndian.PutUint32(payload[0:4], value)
	cmd := frame.Command{Opcode: frame.OpDataBlock, Addr: addr, Payload: payload}
	if err := o.sendCommand(cmd); err != nil {
		return fmt.Errorf("memops: write32 send: %w", err)
	}
	status, err := o.readStatus()
	if err != nil {
		return err
	}
	return frame.StatusError(status)
}

// Erase issues a single erase covering [addr, addr+size). Any
// non-0x55 status terminates the operation with its named error
// (scenario S4).
func (o *Ops) Erase(addr, size uint32) error {
	var payload [9]byte
	binary.BigEndian.PutUint32(payload[0:4], size)
	cmd := frame.Command{Opcode: frame.OpErase, Addr: addr, Payload: payload}
	if err := o.sendCommand(cmd); err != nil {
		return fmt.Errorf("memops: erase send: %w", err)
	}
	status, err := o.readStatus()
	if err != nil {
		return err
	}
	return frame.StatusError(status)
}

// ReadCompressed reads size bytes at addr, LZ4-decompressing the
// stream, and writes the result to out (spec §4.4, scenario S2). The
// device may satisfy the request over several rounds, each announced
// by its own descriptor frame carrying that round's compressed byte
// count; ReadCompressed repeats descriptor/stream/ack until the
// outstanding byte count reaches 0.
func (o *Ops) ReadCompressed(addr, size uint32, out io.Writer) error {
	var payload [9]byte
	binary.BigEndian.PutUint32(payload[0:4], size)
	cmd := frame.Command{Opcode: frame.OpCompressedRead, Addr: addr, Payload: payload}
	if err := o.sendCommand(cmd); err != nil {
		return fmt.Errorf("memops: compressed read send: %w", err)
	}

	remaining := int(size)
	for remaining > 0 {
		descriptor, err := o.can.Recv(o.timeout)
		if err != nil {
			return fmt.Errorf("memops: compressed read descriptor: %w", err)
		}
		if len(descriptor.Data) < 8 {
			return &frame.Error{Kind: frame.ShortFrame, Payload: descriptor.Data}
		}
		compressedSize := int(descriptor.Data[5])<<16 | int(descriptor.Data[6])<<8 | int(descriptor.Data[7])

		pages := transfer.NewPageBuffer()
		for pages.Len() < compressedSize {
			frm, err := o.can.Recv(o.timeout)
			if err != nil {
				return fmt.Errorf("memops: compressed read stream: %w", err)
			}
			if len(frm.Data) < 2 {
				return &frame.Error{Kind: frame.ShortFrame, Payload: frm.Data}
			}
			if err := pages.Append(frm.Data[1], frm.Data[2:]); err != nil {
				return err
			}
		}

		compressed := pages.Bytes()
		if len(compressed) > compressedSize {
			compressed = compressed[:compressedSize]
		}
		plain, err := transfer.DecompressLZ4(compressed, remaining)
		if err != nil {
			return err
		}
		if _, err := out.Write(plain); err != nil {
			return err
		}
		remaining -= len(plain)

		// Single-frame ACK (0x07, 0xAC) after each round's compressed
		// payload has arrived and been decompressed.
		if err := o.can.Send(canlink.Frame{ID: frame.ID, Data: []byte{frame.OpCompressedRead, 0xAC}}); err != nil {
			return fmt.Errorf("memops: compressed read ack: %w", err)
		}
	}
	return nil
}

// ReadUncompressed reads size bytes at addr. As with ReadCompressed,
// the device sequences this as repeated descriptor/stream/ack rounds:
// each round's descriptor frame declares that round's chunk size (up
// to 256 bytes), which is what the trailing 0xAA filler is trimmed
// against rather than scanning the payload's tail (spec §4.4).
func (o *Ops) ReadUncompressed(addr, size uint32, out io.Writer) error {
	var payload [9]byte
	binary.BigEndian.PutUint32(payload[0:4], size)
	cmd := frame.Command{Opcode: frame.OpUncompressedRead, Addr: addr, Payload: payload}
	if err := o.sendCommand(cmd); err != nil {
		return fmt.Errorf("memops: uncompressed read send: %w", err)
	}

	remaining := int(size)
	for remaining > 0 {
		descriptor, err := o.can.Recv(o.timeout)
		if err != nil {
			return fmt.Errorf("memops: uncompressed read descriptor: %w", err)
		}
		if len(descriptor.Data) < 8 {
			return &frame.Error{Kind: frame.ShortFrame, Payload: descriptor.Data}
		}
		chunkSize := int(descriptor.Data[5])<<16 | int(descriptor.Data[6])<<8 | int(descriptor.Data[7])

		pages := transfer.NewPageBuffer()
		for pages.Len() < chunkSize {
			frm, err := o.can.Recv(o.timeout)
			if err != nil {
				return fmt.Errorf("memops: uncompressed read stream: %w", err)
			}
			if len(frm.Data) < 2 {
				return &frame.Error{Kind: frame.ShortFrame, Payload: frm.Data}
			}
			if err := pages.Append(frm.Data[1], frm.Data[2:]); err != nil {
				return err
			}
		}

		chunk := pages.Bytes()
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}
		if _, err := out.Write(chunk); err != nil {
			return err
		}
		remaining -= len(chunk)

		if err := o.can.Send(canlink.Frame{ID: frame.ID, Data: []byte{frame.OpUncompressedRead, 0xAC}}); err != nil {
			return fmt.Errorf("memops: uncompressed read ack: %w", err)
		}
	}
	return nil
}

// ProgramFile writes size bytes read sequentially from r starting at
// addr, zero-padding the final partial page (spec §4.4 write
// direction, scenario S5).
func (o *Ops) ProgramFile(addr uint32, size int64, r io.Reader, onProgress ProgressFunc) error {
	header := frame.Command{Opcode: frame.OpProgramHeader, Addr: addr}
	if err := o.sendCommand(header); err != nil {
		return fmt.Errorf("memops: program header send: %w", err)
	}
	status, err := o.readStatus()
	if err != nil {
		return err
	}
	if err := frame.StatusError(status); err != nil {
		return err
	}

	rd := transfer.NewReader(r, PageSize)
	var written int64
	for written < size {
		page, rerr := rd.NextPage()
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			return fmt.Errorf("memops: read source page at offset %d: %w", written, rerr)
		}
		if len(page) < PageSize {
			padded := make([]byte, PageSize)
			copy(padded, page)
			page = padded
		}

		if err := o.writePage(page); err != nil {
			return err
		}

		written += int64(len(page))
		if onProgress != nil {
			onProgress(written, size)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
	}

	eot := frame.Command{Opcode: frame.OpEndOfTransmit}
	if err := o.sendCommand(eot); err != nil {
		return fmt.Errorf("memops: end of transmission send: %w", err)
	}
	status, err = o.readStatus()
	if err != nil {
		return err
	}
	return frame.StatusError(status)
}

// writePage streams one 256-byte page as a first frame, 31
// consecutive frames, and a final frame carrying the XOR checksum,
// then verifies the two expected status frames (program-ack,
// verification-ack) are both 0x55.
func (o *Ops) writePage(page []byte) error {
	if len(page) != PageSize {
		return fmt.Errorf("memops: page must be exactly %d bytes, got %d", PageSize, len(page))
	}

	// XOR accumulator runs over every byte sent after the first frame's
	// leading byte (its second opcode byte included), matching the
	// two-frame command checksum convention in bsl/frame.
	var checksum byte
	first := []byte{frame.OpDataBlock, frame.OpDataBlock}
	first = append(first, page[0:6]...)
	for _, b := range first[1:] {
		checksum ^= b
	}
	if err := o.can.Send(canlink.Frame{ID: frame.ID, Data: first}); err != nil {
		return fmt.Errorf("memops: page first frame: %w", err)
	}

	// 31 consecutive 8-byte frames of raw data: page[6:254].
	offset := 6
	for i := 0; i < 31; i++ {
		chunk := page[offset : offset+8]
		for _, b := range chunk {
			checksum ^= b
		}
		if err := o.can.Send(canlink.Frame{ID: frame.ID, Data: chunk}); err != nil {
			return fmt.Errorf("memops: page data frame %d: %w", i, err)
		}
		offset += 8
	}

	// Final frame: remaining 2 data bytes (page[254:256]), 5 zero
	// filler bytes, then the trailing checksum byte.
	tail := append([]byte{}, page[offset:offset+2]...)
	for _, b := range tail {
		checksum ^= b
	}
	tail = append(tail, 0x00, 0x00, 0x00, 0x00, 0x00, checksum)
	if err := o.can.Send(canlink.Frame{ID: frame.ID, Data: tail}); err != nil {
		return fmt.Errorf("memops: page final frame: %w", err)
	}

	programAck, err := o.readStatus()
	if err != nil {
		return err
	}
	if err := frame.StatusError(programAck); err != nil {
		return &frame.Error{Kind: frame.Program, Payload: []byte{programAck}}
	}
	verifyAck, err := o.readStatus()
	if err != nil {
		return err
	}
	if err := frame.StatusError(verifyAck); err != nil {
		return &frame.Error{Kind: frame.Verification, Payload: []byte{verifyAck}}
	}
	return nil
}

// Password submission flags (spec §4.8): ucb=0x00 selects read
// protection scope, ucb=0x01 selects write protection scope.
const (
	ReadPasswordUCB  byte = 0x00
	WritePasswordUCB byte = 0x01
)

// SendPasswords submits the two 32-bit boot passwords for either the
// read or write protection scope. Read passwords must precede read
// operations; write passwords (ucb=0x01) must precede any
// erase/program.
func (o *Ops) SendPasswords(pw1, pw2 uint32, write bool, ucb byte) error {
	var flag byte
	if write {
		flag = 0x01
	}

	var payload [9]byte
	binary.LittleEndian.PutUint32(payload[0:4], pw2)
	payload[4] = 0x00
	payload[5] = flag
	payload[6] = ucb
	payload[7] = 0x00
	payload[8] = 0x00

	cmd := frame.Command{Opcode: frame.OpPasswords, Addr: swapEndian(pw1), Payload: payload}
	if err := o.sendCommand(cmd); err != nil {
		return fmt.Errorf("memops: send passwords: %w", err)
	}
	status, err := o.readStatus()
	if err != nil {
		return err
	}
	return frame.StatusError(status)
}

// swapEndian reverses the byte order of v so that encoding it
// big-endian on the wire reproduces v's little-endian byte sequence,
// per the pw1_le wire layout in spec §4.8.
func swapEndian(v uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return binary.BigEndian.Uint32(b[:])
}
