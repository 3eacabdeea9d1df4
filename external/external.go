/*
 * tcbsl - Subprocess collaborators: seed-to-key and CRC preimage solvers.
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

// Package external wraps the two out-of-process solvers named in
// spec §6 behind narrow interfaces, so sboot and oracle never shell
// out directly. Both algorithms are deliberately out of scope (spec
// §1): this package only marshals hex in, parses hex out, and
// preserves stderr for diagnostics, per the Design Note on subprocess
// collaborators.
package external

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wrongbaud/tcbsl/bsl/frame"
)

// KeySolver turns a seed into the SBOOT challenge key.
type KeySolver interface {
	Solve(ctx context.Context, seed []byte) ([4]byte, error)
}

// PreimageSolver inverts four CRC-oracle probe results into the
// four 32-bit boot passwords.
type PreimageSolver interface {
	Invert(ctx context.Context, results [4]ProbeResult) ([4]uint32, error)
}

// ProbeResult is one CRC-oracle probe outcome: the address the
// validator reached before faulting, the running CRC at that point,
// and (Simos 8 only) the probed range length the solver also needs.
type ProbeResult struct {
	EndAddr  uint32
	CRC      uint32
	RangeLen uint32
}

// Twister shells out to a seed-to-key solver binary named "twister"
// in spec §6: `twister <seed_start> <seed_hex> 1`, printing the key
// as one hex token on stdout.
type Twister struct {
	Path      string
	SeedStart string
}

// NewTwister builds a Twister invoking the binary at path, passing
// seedStart (a host-dependent tuning constant, spec §9) as the first
// argument.
func NewTwister(path, seedStart string) *Twister {
	return &Twister{Path: path, SeedStart: seedStart}
}

// Solve runs the solver against the first four bytes of seed.
func (t *Twister) Solve(ctx context.Context, seed []byte) ([4]byte, error) {
	if len(seed) < 4 {
		return [4]byte{}, &frame.Error{Kind: frame.Subprocess, Payload: seed}
	}
	seedHex := hex.EncodeToString(seed[:4])

	cmd := exec.CommandContext(ctx, t.Path, t.SeedStart, seedHex, "1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return [4]byte{}, fmt.Errorf("external: twister: %w (stderr: %s)", err, stderr.String())
	}

	tok := strings.TrimSpace(stdout.String())
	fields := strings.Fields(tok)
	if len(fields) == 0 {
		return [4]byte{}, &frame.Error{Kind: frame.Subprocess, Payload: []byte(tok)}
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(fields[0], "0x"))
	if err != nil || len(raw) < 4 {
		return [4]byte{}, &frame.Error{Kind: frame.Subprocess, Payload: []byte(fields[0])}
	}

	var key [4]byte
	copy(key[:], raw[:4])
	return key, nil
}

// CRCPreimage shells out to a configured CRC bit-flip preimage
// solver, feeding it the four (crc, range_length) pairs and parsing
// four hex words back off stdout, one per line.
type CRCPreimage struct {
	Path string
}

// NewCRCPreimage builds a CRCPreimage invoking the binary at path.
func NewCRCPreimage(path string) *CRCPreimage {
	return &CRCPreimage{Path: path}
}

// Invert feeds the solver "<crc> <range_len>" per probe as consecutive
// arguments, and parses four little-endian 32-bit words off stdout.
func (c *CRCPreimage) Invert(ctx context.Context, results [4]ProbeResult) ([4]uint32, error) {
	args := make([]string, 0, len(results)*2)
	for _, r := range results {
		args = append(args,
			fmt.Sprintf("%08x", r.CRC),
			fmt.Sprintf("%08x", r.RangeLen),
		)
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return [4]uint32{}, fmt.Errorf("external: crc preimage solver: %w (stderr: %s)", err, stderr.String())
	}

	lines := strings.Fields(stdout.String())
	if len(lines) < 4 {
		return [4]uint32{}, &frame.Error{Kind: frame.Subprocess, Payload: stdout.Bytes()}
	}

	var out [4]uint32
	for i := 0; i < 4; i++ {
		raw, err := hex.DecodeString(strings.TrimPrefix(lines[i], "0x"))
		if err != nil || len(raw) < 4 {
			return [4]uint32{}, &frame.Error{Kind: frame.Subprocess, Payload: []byte(lines[i])}
		}
		out[i] = binary.LittleEndian.Uint32(raw)
	}
	return out, nil
}
