/*
 * tcbsl - ISO-TP link for SBOOT dialogue.
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

// Package isotp implements the narrow slice of ISO 15765-2 multi-frame
// segmentation the SBOOT dialogue needs (C3): fixed rx-id 0x7E8,
// tx-id 0x7E0, a fixed TX padding byte, single/first/consecutive
// frame encoding, and PDU reassembly. Nothing beyond what SBOOT uses
// is implemented; there is no flow-control tuning and no support for
// the 0x300/0x7E0 raw-CAN dual use outside what §5 requires.
package isotp

import (
	"errors"
	"time"

	"github.com/wrongbaud/tcbsl/hw/canlink"
)

const (
	RxID = 0x7E8
	TxID = 0x7E0

	padByte = 0x55

	pciSingle      = 0x0
	pciFirst       = 0x1
	pciConsecutive = 0x2
	pciFlowControl = 0x3
)

var (
	ErrShortFrame  = errors.New("isotp: short frame")
	ErrUnknownPCI  = errors.New("isotp: unrecognized protocol control byte")
	ErrOutOfOrder  = errors.New("isotp: consecutive frame out of sequence")
	ErrTimeout     = errors.New("isotp: timed out waiting for frame")
	ErrNoFlowCtrl  = errors.New("isotp: multi-frame send got no flow control")
)

// Link sends and receives whole ISO-TP PDUs atop a canlink.Link.
type Link struct {
	can     canlink.Link
	timeout time.Duration
}

// New wraps can with the fixed SBOOT rx/tx IDs.
func New(can canlink.Link, timeout time.Duration) *Link {
	return &Link{can: can, timeout: timeout}
}

// Send transmits data as a single ISO-TP PDU, segmenting into a First
// Frame plus Consecutive Frames when it exceeds 7 bytes.
func (l *Link) Send(data []byte) error {
	if len(data) <= 7 {
		frame := pad(append([]byte{byte(pciSingle<<4) | byte(len(data))}, data...))
		return l.can.Send(canlink.Frame{ID: TxID, Data: frame})
	}

	first := make([]byte, 8)
	first[0] = byte(pciFirst<<4) | byte((len(data)>>8)&0xf)
	first[1] = byte(len(data) & 0xff)
	copy(first[2:], data[:6])
	if err := l.can.Send(canlink.Frame{ID: TxID, Data: first}); err != nil {
		return err
	}

	// Wait for the device's flow control frame before streaming
	// consecutive frames.
	fc, err := l.can.Recv(l.timeout)
	if err != nil {
		return err
	}
	if len(fc.Data) == 0 || fc.Data[0]>>4 != pciFlowControl {
		return ErrNoFlowCtrl
	}

	remaining := data[6:]
	seq := byte(1)
	for len(remaining) > 0 {
		chunk := remaining
		if len(chunk) > 7 {
			chunk = chunk[:7]
		}
		frame := make([]byte, 1+len(chunk))
		frame[0] = byte(pciConsecutive<<4) | (seq & 0xf)
		copy(frame[1:], chunk)
		if err := l.can.Send(canlink.Frame{ID: TxID, Data: pad(frame)}); err != nil {
			return err
		}
		remaining = remaining[len(chunk):]
		seq++
	}
	return nil
}

// WaitFrame reassembles and returns one full ISO-TP PDU, or
// ErrTimeout if nothing arrives in time.
func (l *Link) WaitFrame() ([]byte, error) {
	frm, err := l.can.Recv(l.timeout)
	if errors.Is(err, canlink.ErrTimeout) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, err
	}
	if frm.ID != RxID {
		return nil, nil //nolint:nilnil // caller filters by ID itself, see sboot.
	}
	if len(frm.Data) == 0 {
		return nil, ErrShortFrame
	}

	pci := frm.Data[0] >> 4
	switch pci {
	case pciSingle:
		length := int(frm.Data[0] & 0xf)
		if length > len(frm.Data)-1 {
			return nil, ErrShortFrame
		}
		return append([]byte(nil), frm.Data[1:1+length]...), nil

	case pciFirst:
		if len(frm.Data) < 8 {
			return nil, ErrShortFrame
		}
		length := (int(frm.Data[0]&0xf) << 8) | int(frm.Data[1])
		out := append([]byte(nil), frm.Data[2:8]...)

		// Send flow-control continue-to-send.
		if err := l.can.Send(canlink.Frame{ID: TxID, Data: pad([]byte{byte(pciFlowControl << 4), 0x00, 0x00})}); err != nil {
			return nil, err
		}

		wantSeq := byte(1)
		for len(out) < length {
			cf, err := l.can.Recv(l.timeout)
			if err != nil {
				return nil, err
			}
			if cf.ID != RxID || len(cf.Data) == 0 || cf.Data[0]>>4 != pciConsecutive {
				return nil, ErrUnknownPCI
			}
			if cf.Data[0]&0xf != wantSeq&0xf {
				return nil, ErrOutOfOrder
			}
			remain := length - len(out)
			take := len(cf.Data) - 1
			if take > remain {
				take = remain
			}
			out = append(out, cf.Data[1:1+take]...)
			wantSeq++
		}
		return out, nil

	default:
		return nil, ErrUnknownPCI
	}
}

func pad(b []byte) []byte {
	out := make([]byte, 8)
	for i := range out {
		out[i] = padByte
	}
	copy(out, b)
	return out
}
