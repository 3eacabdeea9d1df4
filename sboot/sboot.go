/*
 * tcbsl - SBOOT shell driver: induction, seed/key, CRC probe programming.
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

// Package sboot drives the factory Supplier Bootloader shell (C5):
// physical-layer induction, the raw-CAN handshake into the shell,
// seed/key authentication, and the six-write CRC-oracle probe
// program sequence that reboots the target into the BSL.
package sboot

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/wrongbaud/tcbsl/device"
	"github.com/wrongbaud/tcbsl/hw/canlink"
	"github.com/wrongbaud/tcbsl/hw/isotp"
	"github.com/wrongbaud/tcbsl/hw/phyline"
)

// CAN ids named in spec §6.
const (
	initAckID    = 0x040
	failID       = 0x0A7
	rawRequestID = isotp.TxID // 0x7E0
	rawReplyID   = isotp.RxID // 0x7E8
)

const (
	positiveAck byte = 0xA0

	cmdElevate byte = 0x30
	cmdSeed    byte = 0x54
	cmdKey     byte = 0x65
	cmdWrite   byte = 0x78
	cmdTrigger byte = 0x79
)

// defaultNoneMsgThreshold is the default consecutive-empty-window
// count before the tolerant induction path proceeds opportunistically
// (spec §4.5, testable property 6).
const defaultNoneMsgThreshold = 60

// Config tunes the induction and probe timing.
type Config struct {
	// Strict selects the source's strict two-ack-required induction
	// path. The default (false) is the tolerant path used in
	// practice, per the Open Question resolution in spec §9.
	Strict bool

	PWMSettle        time.Duration // default 1s
	NoneMsgThreshold int           // default 60
	CRCDelay         time.Duration // default 2ms
}

func (c Config) withDefaults() Config {
	if c.PWMSettle == 0 {
		c.PWMSettle = time.Second
	}
	if c.NoneMsgThreshold == 0 {
		c.NoneMsgThreshold = defaultNoneMsgThreshold
	}
	if c.CRCDelay == 0 {
		c.CRCDelay = 2 * time.Millisecond
	}
	return c
}

// CRCProbe is the six-field record written to the validator's scratch
// region before triggering it, spec §3's CRC Probe Descriptor.
type CRCProbe struct {
	InitialCRC  uint32
	ExpectedCRC uint32
	RangeCount  uint32
	StartAddr   uint32
	EndAddr     uint32
	PartNumber  [28]byte
}

// Shell drives one SBOOT session atop a Device's raw CAN link and
// physical line driver.
type Shell struct {
	dev *device.Device
	cfg Config

	iso *isotp.Link // valid only after induction switches to ISO-TP mode
}

// New builds a Shell bound to dev.
func New(dev *device.Device, cfg Config) *Shell {
	return &Shell{dev: dev, cfg: cfg.withDefaults()}
}

// EnterShell runs the induction sequence (spec §4.5 steps 1-6) and
// returns once the device has acknowledged entry into the SBOOT
// shell, with the link switched to ISO-TP mode for subsequent
// dialogue.
func (s *Shell) EnterShell(ctx context.Context) error {
	if err := s.dev.Line.PWMStart(phyline.PWMConfig{}); err != nil {
		return fmt.Errorf("sboot: pwm start: %w", err)
	}
	time.Sleep(s.cfg.PWMSettle)

	if err := s.dev.Line.ResetPulse(10 * time.Millisecond); err != nil {
		return fmt.Errorf("sboot: reset pulse: %w", err)
	}

	if err := s.dev.CAN.Send(canlink.Frame{ID: rawRequestID, Data: []byte{0x59, 0x45}}); err != nil {
		return fmt.Errorf("sboot: send 59 45: %w", err)
	}
	// First reply is discarded per spec §4.5 step 3.
	_, _ = s.dev.CAN.Recv(500 * time.Millisecond)

	if err := s.dev.CAN.Send(canlink.Frame{ID: rawRequestID, Data: []byte{0x6B}}); err != nil {
		return fmt.Errorf("sboot: send 6b: %w", err)
	}

	acks, err := s.waitForAcks(ctx)
	if err != nil {
		return err
	}
	if s.cfg.Strict && acks < 2 {
		return errInduction("strict induction requires two acks")
	}

	if err := s.dev.Line.PWMStop(); err != nil {
		return fmt.Errorf("sboot: pwm stop: %w", err)
	}

	s.iso = isotp.New(s.dev.CAN, 2*time.Second)
	return nil
}

// waitForAcks ingests frames until two positive acks have arrived, a
// terminal failure frame arrives, or NoneMsgThreshold consecutive
// empty receive windows elapse, in which case the tolerant path
// proceeds opportunistically (testable property 6).
func (s *Shell) waitForAcks(ctx context.Context) (int, error) {
	acks := 0
	empty := 0
	for acks < 2 {
		select {
		case <-ctx.Done():
			return acks, ctx.Err()
		default:
		}

		frm, err := s.dev.CAN.Recv(50 * time.Millisecond)
		if err != nil {
			empty++
			if empty >= s.cfg.NoneMsgThreshold {
				return acks, nil
			}
			continue
		}
		empty = 0

		switch {
		case frm.ID == failID:
			return acks, errInduction("device reported terminal failure on id 0x0a7")
		case frm.ID == rawReplyID && len(frm.Data) > 0 && frm.Data[0] == positiveAck:
			acks++
		}
	}
	return acks, nil
}

// Seed is the multi-byte challenge returned by the shell; only its
// first four bytes are meaningful to the external key solver.
type Seed []byte

// RetrieveSeed elevates shell privilege and reads the seed (spec
// §4.5: `30 00`x12 then `54`).
func (s *Shell) RetrieveSeed(ctx context.Context) (Seed, error) {
	for i := 0; i < 12; i++ {
		if err := s.iso.Send([]byte{cmdElevate, 0x00}); err != nil {
			return nil, fmt.Errorf("sboot: elevate: %w", err)
		}
	}

	if err := s.iso.Send([]byte{cmdSeed}); err != nil {
		return nil, fmt.Errorf("sboot: request seed: %w", err)
	}
	reply, err := s.iso.WaitFrame()
	if err != nil {
		return nil, fmt.Errorf("sboot: read seed: %w", err)
	}
	if len(reply) < 4 {
		return nil, errInduction("seed reply shorter than 4 bytes")
	}
	return Seed(reply), nil
}

// SubmitKey answers the challenge (spec §4.5: `65 || key[4]`).
func (s *Shell) SubmitKey(key [4]byte) error {
	payload := append([]byte{cmdKey}, key[:]...)
	if err := s.iso.Send(payload); err != nil {
		return fmt.Errorf("sboot: submit key: %w", err)
	}
	reply, err := s.iso.WaitFrame()
	if err != nil {
		return fmt.Errorf("sboot: key ack: %w", err)
	}
	if len(reply) == 0 || reply[0] != positiveAck {
		return errInduction("key rejected")
	}
	return nil
}

// ProgramCRCProbe performs the six ordered writes to the validator's
// scratch region (spec §4.5): initial CRC, expected CRC, range count,
// start address, end address, then the part-number literal.
func (s *Shell) ProgramCRCProbe(probe CRCProbe) error {
	writes := []struct {
		ofs   byte
		value []byte
	}{
		{0x00, word(probe.InitialCRC)},
		{0x04, word(probe.ExpectedCRC)},
		{0x08, word(probe.RangeCount)},
		{0x0C, word(probe.StartAddr)},
		{0x10, word(probe.EndAddr)},
		{0x14, probe.PartNumber[:]},
	}
	for _, w := range writes {
		frame := append([]byte{cmdWrite, 0x00, 0x00, 0x00, w.ofs}, w.value...)
		if err := s.iso.Send(frame); err != nil {
			return fmt.Errorf("sboot: probe write at offset 0x%02x: %w", w.ofs, err)
		}
	}
	return nil
}

// TriggerValidator launches the probe with `79`; the device reboots
// into the BSL within CRCDelay.
func (s *Shell) TriggerValidator() error {
	if err := s.iso.Send([]byte{cmdTrigger}); err != nil {
		return fmt.Errorf("sboot: trigger: %w", err)
	}
	time.Sleep(s.cfg.CRCDelay)
	return nil
}

func word(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

type inductionError string

func (e inductionError) Error() string { return string(e) }

func errInduction(msg string) error { return inductionError("sboot: " + msg) }
