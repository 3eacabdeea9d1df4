/*
 * tcbsl - Classical CAN link.
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

// Package canlink is the 500kbit/s Classical CAN transport (C2):
// 11-bit IDs, up to 8 data bytes, blocking receive with timeout, and
// error-frame filtering. Production traffic rides SocketCAN via
// brutella/can; tests ride an in-memory loopback.
package canlink

import (
	"errors"
	"fmt"
	"time"

	socketcan "github.com/brutella/can"
)

// canErrFlag mirrors Linux SocketCAN's CAN_ERR_FLAG bit in frame IDs;
// brutella/can passes error frames through with this bit set rather
// than a dedicated field.
const canErrFlag uint32 = 0x20000000

// Frame is one Classical CAN frame.
type Frame struct {
	ID      uint32
	Data    []byte
	IsError bool
}

var (
	// ErrTimeout is returned by Recv when no frame arrives before the
	// timeout expires.
	ErrTimeout = errors.New("canlink: receive timed out")
	// ErrClosed is returned by Send/Recv after Close.
	ErrClosed = errors.New("canlink: link is closed")
)

// Link is the interface every transport above it (ISO-TP, the BSL
// framed protocol, the SBOOT driver) is written against.
type Link interface {
	Send(f Frame) error
	Recv(timeout time.Duration) (Frame, error)
	Close() error
}

// Bus is a Link backed by a real SocketCAN interface.
type Bus struct {
	iface string
	bus   *socketcan.Bus
	in    chan socketcan.Frame
	done  chan struct{}
}

// Open binds to the named SocketCAN interface (e.g. "can0"). The
// caller is expected to have already configured the interface for
// 500kbit/s classical CAN (e.g. via `ip link`); this package does not
// touch bitrate configuration.
func Open(iface string) (*Bus, error) {
	bus, err := socketcan.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, fmt.Errorf("canlink: open %s: %w", iface, err)
	}

	b := &Bus{
		iface: iface,
		bus:   bus,
		in:    make(chan socketcan.Frame, 256),
		done:  make(chan struct{}),
	}

	bus.SubscribeFunc(func(frm socketcan.Frame) {
		select {
		case b.in <- frm:
		case <-b.done:
		}
	})

	go func() {
		_ = bus.ConnectAndPublish()
	}()

	return b, nil
}

// Send transmits a single frame, right-padding Data to 8 bytes with
// 0x00 only when the caller asked for 8 bytes of payload; shorter
// SBOOT-mode frames are sent as-is.
func (b *Bus) Send(f Frame) error {
	var data [8]byte
	copy(data[:], f.Data)
	frm := socketcan.Frame{
		ID:     f.ID,
		Length: uint8(len(f.Data)),
		Data:   data,
	}
	return b.bus.Publish(frm)
}

// Recv blocks until a non-error frame arrives or timeout elapses.
func (b *Bus) Recv(timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case frm := <-b.in:
			if frm.ID&canErrFlag != 0 {
				continue
			}
			return Frame{ID: frm.ID, Data: append([]byte(nil), frm.Data[:frm.Length]...)}, nil
		case <-timer.C:
			return Frame{}, ErrTimeout
		case <-b.done:
			return Frame{}, ErrClosed
		}
	}
}

// Close releases the SocketCAN socket.
func (b *Bus) Close() error {
	close(b.done)
	return b.bus.Disconnect()
}

// Sim is an in-memory point-to-point Link used by package tests and
// by the sim device simulator: writes to Tx are read back on the
// peer's Rx, and vice versa.
type Sim struct {
	tx     chan Frame
	rx     chan Frame
	closed chan struct{}
}

// NewSimPair returns two Links wired back to back, as if connected by
// a single CAN bus with exactly one other node.
func NewSimPair() (*Sim, *Sim) {
	a := make(chan Frame, 64)
	b := make(chan Frame, 64)
	closed := make(chan struct{})
	return &Sim{tx: a, rx: b, closed: closed}, &Sim{tx: b, rx: a, closed: closed}
}

func (s *Sim) Send(f Frame) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	cp := Frame{ID: f.ID, Data: append([]byte(nil), f.Data...), IsError: f.IsError}
	select {
	case s.tx <- cp:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

func (s *Sim) Recv(timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case f := <-s.rx:
			if f.IsError {
				continue
			}
			return f, nil
		case <-timer.C:
			return Frame{}, ErrTimeout
		case <-s.closed:
			return Frame{}, ErrClosed
		}
	}
}

func (s *Sim) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
