/*
 * tcbsl - In-memory BSL device simulator for the testable-properties suite.
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

// Package sim is an in-memory stand-in for a real Tricore target,
// speaking just enough of the Framed BSL wire protocol to drive the
// testable-properties suite (spec §8) without any hardware: a flash
// backing array, two-frame command decoding with the real checksum
// check, page write and read-stream state machines with the real
// sequencing, and a CRC-32/ISO-HDLC helper. The trailing checksum of a
// written page is not verified.
package sim

import (
	"encoding/binary"
	"time"

	"github.com/pasztorpisti/go-crc"

	"github.com/wrongbaud/tcbsl/bsl/frame"
	"github.com/wrongbaud/tcbsl/hw/canlink"
)

// recvTimeout bounds how long the simulator waits for the next frame
// of a request; generous since tests run everything synchronously
// over in-memory channels with no real latency.
const recvTimeout = 2 * time.Second

// readChunkSize is the fixed device-side chunk granularity for
// uncompressed reads (spec §4.4); payloadPerFrame is the number of
// data bytes each streamed read frame carries alongside its opcode
// and sequence byte.
const (
	readChunkSize  = 256
	payloadPerFrame = 6
)

// Device is a minimal BSL-protocol responder backed by an in-memory
// flash image and a CAN Sim link.
type Device struct {
	link           *canlink.Sim
	mem            map[uint32][]byte   // page-aligned backing store
	compressedSrc  map[uint32][][]byte // queued pre-compressed blocks to serve back, one per read_compressed round

	// InjectStatus, while non-zero, is returned as the program-ack
	// status of every page write instead of 0x55 (scenario S5).
	InjectStatus byte

	// InjectSeqGap, if true, corrupts the sequence byte of the second
	// frame on the next streamed read (property 2).
	InjectSeqGap bool
}

// NewDevice builds a simulator wired to one end of a Sim CAN link;
// the caller keeps the other end to act as the host.
func NewDevice(link *canlink.Sim) *Device {
	return &Device{
		link:          link,
		mem:           make(map[uint32][]byte),
		compressedSrc: make(map[uint32][][]byte),
	}
}

// SetCompressedSource queues one round's worth of pre-compressed
// bytes for a compressed-read request at addr, as if an LZ4 block
// compressor had already run device-side; the solver for that step is
// out of scope here (spec §1), so tests supply the compressed bytes
// directly. Call it more than once per addr to simulate a read the
// device satisfies over several descriptor/stream/ack rounds.
func (d *Device) SetCompressedSource(addr uint32, compressed []byte) {
	d.compressedSrc[addr] = append(d.compressedSrc[addr], append([]byte(nil), compressed...))
}

// WriteMemory seeds the backing store at addr (test setup helper, not
// part of the wire protocol).
func (d *Device) WriteMemory(addr uint32, data []byte) {
	d.mem[addr] = append([]byte(nil), data...)
}

// ReadMemory returns whatever the simulator holds at addr, or nil.
func (d *Device) ReadMemory(addr uint32) []byte {
	return d.mem[addr]
}

// CRC32 computes the simulator's reference CRC over data, standing in
// for the Tricore validator's on-chip CRC engine in the oracle
// determinism property.
func (d *Device) CRC32(data []byte) uint32 {
	return crc.CRC32ISOHDLC.Calc(data)
}

// Serve runs one request/response exchange: it reads a two-frame
// command, performs the matching operation against the backing
// store, and writes the appropriate status/data replies. It returns
// after one logical operation completes (erase, write32, read32,
// passwords, program header, end of transmission, or one whole
// compressed or uncompressed read); page data is consumed separately
// by ServePageWrite. This matches the request-scoped nature of
// tests built against it.
func (d *Device) Serve() error {
	first, err := d.recvExact()
	if err != nil {
		return err
	}
	second, err := d.recvExact()
	if err != nil {
		return err
	}

	cmd, err := frame.Decode(toArr8(first.Data), toArr8(second.Data))
	if err != nil {
		return d.reply(frame.ChecksumError)
	}

	switch cmd.Opcode {
	case frame.OpErase:
		return d.reply(frame.Success)
	case frame.OpDataBlock:
		return d.serveWrite32(cmd)
	case frame.OpRead32:
		return d.serveRead32(cmd)
	case frame.OpPasswords:
		return d.reply(frame.Success)
	case frame.OpProgramHeader:
		return d.reply(frame.Success)
	case frame.OpEndOfTransmit:
		return d.reply(frame.Success)
	case frame.OpCompressedRead:
		return d.serveCompressedRead(cmd)
	case frame.OpUncompressedRead:
		return d.serveUncompressedRead(cmd)
	default:
		return d.reply(frame.ModeError)
	}
}

// serveCompressedRead streams every block queued by SetCompressedSource
// for cmd.Addr, one descriptor/stream/ack round per block, matching
// the device's own repeat-until-exhausted sequencing (spec §4.4).
func (d *Device) serveCompressedRead(cmd frame.Command) error {
	blocks := d.compressedSrc[cmd.Addr]
	defer delete(d.compressedSrc, cmd.Addr)

	for _, compressed := range blocks {
		var descriptor [8]byte
		descriptor[0] = frame.OpCompressedRead
		binary.BigEndian.PutUint32(descriptor[1:5], cmd.Addr)
		descriptor[5] = byte(len(compressed) >> 16)
		descriptor[6] = byte(len(compressed) >> 8)
		descriptor[7] = byte(len(compressed))
		if err := d.link.Send(canlink.Frame{ID: frame.ID, Data: descriptor[:]}); err != nil {
			return err
		}

		if err := d.streamFrames(frame.OpCompressedRead, compressed); err != nil {
			return err
		}

		if _, err := d.recvExact(); err != nil { // per-round ack (0x07, 0xAC)
			return err
		}
	}
	return nil
}

// serveUncompressedRead streams size bytes from mem starting at addr
// in rounds of up to 256 bytes, each announced by its own descriptor
// frame declaring that round's real byte count, 0xAA-padding any
// short final round, and waiting for the host's per-round ack before
// continuing (spec §4.4).
func (d *Device) serveUncompressedRead(cmd frame.Command) error {
	size := binary.BigEndian.Uint32(cmd.Payload[0:4])
	data := d.mem[cmd.Addr]

	var offset uint32
	for offset < size {
		take := size - offset
		if take > readChunkSize {
			take = readChunkSize
		}
		// Frames always carry a full payloadPerFrame-byte tick, so a
		// take that isn't a multiple of it still rounds up for the
		// wire; the host truncates back down to the declared take.
		frameLen := take
		if rem := frameLen % payloadPerFrame; rem != 0 {
			frameLen += payloadPerFrame - rem
		}
		chunk := make([]byte, frameLen)
		for i := range chunk {
			chunk[i] = 0xAA
		}
		if int(offset)+int(take) <= len(data) {
			copy(chunk, data[offset:offset+take])
		} else if int(offset) < len(data) {
			copy(chunk, data[offset:])
		}

		var descriptor [8]byte
		descriptor[0] = frame.OpUncompressedRead
		binary.BigEndian.PutUint32(descriptor[1:5], cmd.Addr+offset)
		descriptor[5] = byte(take >> 16)
		descriptor[6] = byte(take >> 8)
		descriptor[7] = byte(take)
		if err := d.link.Send(canlink.Frame{ID: frame.ID, Data: descriptor[:]}); err != nil {
			return err
		}

		if err := d.streamFrames(frame.OpUncompressedRead, chunk); err != nil {
			return err
		}
		if _, err := d.recvExact(); err != nil { // per-round ack
			return err
		}
		offset += take
	}
	return nil
}

// streamFrames sends payload as consecutive (opcode, seq, up-to-6-byte
// payload) frames with seq starting at 1 and incrementing modulo 256.
// When InjectSeqGap is set, the second frame's sequence byte is
// incremented by an extra 1 once, corrupting the sequence the host
// expects (property 2).
func (d *Device) streamFrames(opcode byte, payload []byte) error {
	seq := byte(1)
	for offset := 0; offset < len(payload); offset += payloadPerFrame {
		end := offset + payloadPerFrame
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[offset:end]

		frameSeq := seq
		if d.InjectSeqGap && seq == 2 {
			frameSeq++
			d.InjectSeqGap = false
		}

		data := append([]byte{opcode, frameSeq}, chunk...)
		if err := d.link.Send(canlink.Frame{ID: frame.ID, Data: data}); err != nil {
			return err
		}
		seq++
	}
	return nil
}

func (d *Device) serveWrite32(cmd frame.Command) error {
	d.mem[cmd.Addr] = append([]byte(nil), cmd.Payload[0:4]...)
	return d.reply(frame.Success)
}

func (d *Device) serveRead32(cmd frame.Command) error {
	data := d.mem[cmd.Addr]
	resp := make([]byte, 5)
	resp[0] = frame.Success
	if len(data) >= 4 {
		copy(resp[1:5], data[:4])
	}
	return d.link.Send(canlink.Frame{ID: frame.ID, Data: resp})
}

// ServePageWrite consumes one full page-write transaction (33 frames:
// first + 31 consecutive + final) and replies with program-ack then
// verification-ack, honoring InjectStatus for scenario S5.
func (d *Device) ServePageWrite(addr uint32) ([]byte, error) {
	page := make([]byte, 0, 256)

	firstFrame, err := d.recvExact()
	if err != nil {
		return nil, err
	}
	page = append(page, firstFrame.Data[2:]...)

	for i := 0; i < 31; i++ {
		f, err := d.recvExact()
		if err != nil {
			return nil, err
		}
		page = append(page, f.Data...)
	}

	final, err := d.recvExact()
	if err != nil {
		return nil, err
	}
	page = append(page, final.Data[0:2]...)

	d.mem[addr] = page

	status := frame.Success
	if d.InjectStatus != 0 {
		status = d.InjectStatus
	}
	if err := d.reply(status); err != nil {
		return page, err
	}
	return page, d.reply(frame.Success)
}

func (d *Device) recvExact() (canlink.Frame, error) {
	return d.link.Recv(recvTimeout)
}

func (d *Device) reply(status byte) error {
	return d.link.Send(canlink.Frame{ID: frame.ID, Data: []byte{status}})
}

func toArr8(b []byte) [8]byte {
	var out [8]byte
	copy(out[:], b)
	return out
}
