/*
 * tcbsl - Page-buffer read/write state machines for the Framed BSL.
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

// Package transfer drives the page-sized read and write state machines
// on top of the Framed BSL command layer (C4): accumulating a page's
// worth of bytes into a buffer, decompressing LZ4-compressed reads, and
// verifying the device's consecutive-frame sequencing. Truncating a
// round's accumulated bytes down to its descriptor-declared size is the
// caller's job (memops), since this package has no visibility into the
// descriptor frame.
package transfer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/wrongbaud/tcbsl/bsl/frame"
)

// PageSize is the BSL's native transfer granularity: program-flash
// pages are 256 bytes (data-flash pages are 128 bytes, but only
// program-flash writes are exercised by the core, spec §3).
const PageSize = 256

// PageBuffer accumulates bytes from a sequence of consecutive BSL
// replies, verifying each arrives with the expected sequence byte.
type PageBuffer struct {
	buf     bytes.Buffer
	wantSeq byte
}

// NewPageBuffer starts a fresh accumulation at sequence 1, the fixed
// initial value every paged transfer's sequence counter begins at
// (spec §3).
func NewPageBuffer() *PageBuffer {
	return &PageBuffer{wantSeq: 1}
}

// Append validates seq against the expected next value (testable
// property 2: sequence increments by one modulo 256 with no gaps) and
// appends data on success.
func (p *PageBuffer) Append(seq byte, data []byte) error {
	if seq != p.wantSeq {
		return &frame.Error{Kind: frame.SequenceMismatch, Payload: []byte{seq, p.wantSeq}}
	}
	p.wantSeq++
	p.buf.Write(data)
	return nil
}

// Bytes returns everything accumulated so far.
func (p *PageBuffer) Bytes() []byte {
	return p.buf.Bytes()
}

// Len reports how many bytes have been accumulated.
func (p *PageBuffer) Len() int {
	return p.buf.Len()
}

// DecompressLZ4 inflates an LZ4 block-compressed page read. The BSL's
// compressed-read opcode returns raw LZ4 blocks (no frame header), so
// lz4.NewReader is not used; lz4.UncompressBlock operates directly on
// the accumulated bytes.
func DecompressLZ4(compressed []byte, wantLen int) ([]byte, error) {
	out := make([]byte, wantLen)
	n, err := lz4.UncompressBlock(compressed, out)
	if err != nil {
		return nil, &frame.Error{Kind: frame.LZ4Decode, Payload: compressed}
	}
	return out[:n], nil
}

// Reader streams LZ4-compressed or raw data from an io.Reader in
// page-sized chunks, mirroring the upload path's block structure. It
// is used by callers that already have a full dump on disk and want
// to feed it into the write-page state machine a PageSize chunk at a
// time.
type Reader struct {
	r    io.Reader
	size int
}

// NewReader wraps r, emitting pages of size bytes (PageSize by
// default when size is 0).
func NewReader(r io.Reader, size int) *Reader {
	if size <= 0 {
		size = PageSize
	}
	return &Reader{r: r, size: size}
}

// NextPage reads up to one page. A partial final page is returned
// together with io.ErrUnexpectedEOF; io.EOF comes back, with no data,
// only when the source is already exhausted.
func (rd *Reader) NextPage() ([]byte, error) {
	buf := make([]byte, rd.size)
	n, err := io.ReadFull(rd.r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("transfer: read page: %w", err)
	}
	return buf[:n], err
}
