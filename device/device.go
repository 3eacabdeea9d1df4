/*
 * tcbsl - Device value bundling the session's hardware and config handles.
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

// Package device holds the Device value: the CAN link, the physical
// line driver, the selected target variant, and the external solver
// collaborators, all acquired once at startup and passed explicitly
// to every subsystem. This replaces the module-level singleton
// pattern the Design Note in spec §9 calls out, in favor of a value
// threaded through call args the way the teacher threads its own
// *core.Core.
package device

import (
	"log/slog"

	"github.com/wrongbaud/tcbsl/external"
	"github.com/wrongbaud/tcbsl/hw/canlink"
	"github.com/wrongbaud/tcbsl/hw/phyline"
	"github.com/wrongbaud/tcbsl/variant"
)

// Device bundles every handle a session's subsystems need. It is
// constructed once at program entry and passed by pointer to sboot,
// oracle, and memops; none of those packages hold their own copies of
// these handles.
type Device struct {
	CAN     canlink.Link
	Line    phyline.Line
	Variant variant.Variant
	Keys    external.KeySolver
	Preimage external.PreimageSolver
	Log     *slog.Logger

	CRCDelayUS       int
	SeedStart        string
	NoneMsgThreshold int
}

// Close releases the CAN link. The physical line driver has no
// persistent resources beyond the GPIO lines periph.io already owns
// for the process lifetime.
func (d *Device) Close() error {
	if d.CAN == nil {
		return nil
	}
	return d.CAN.Close()
}
