/*
 * tcbsl - Stage-two BSL uploader.
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

// Package upload streams the stage-two BSL blob into SRAM over the
// raw CAN IDs SBOOT listens on once induction has succeeded (C7): an
// init frame on 0x100, an ACK wait on 0x40, then the blob itself in
// 8-byte chunks on 0xC0 with a small inter-frame delay the device
// needs to keep up.
package upload

import (
	"fmt"
	"time"

	"github.com/wrongbaud/tcbsl/hw/canlink"
)

const (
	initID = 0x100
	ackID  = 0x40
	dataID = 0xC0

	frameDelay = time.Millisecond
	ackTimeout = 2 * time.Second
)

// Uploader streams a BSL image to the device over link.
type Uploader struct {
	link canlink.Link
}

// New wraps a transport link.
func New(link canlink.Link) *Uploader {
	return &Uploader{link: link}
}

// Progress is called after each 8-byte chunk is sent, with the number
// of bytes sent so far and the total length.
type Progress func(sent, total int)

// Send transmits the complete stage-two image: an init frame
// `55 55 00 01 len_le[2] 00 03` (init magic, post-init ACK id 0x0100,
// the image length in 8-byte frames, data id 0x0300), a wait for the
// device's ACK, then the image itself streamed in 8-byte frames with a
// 1ms delay between each so the device's receive buffer is never
// overrun, and finally a ~10ms drain of whatever the device sends as
// it jumps into the image.
func (u *Uploader) Send(image []byte, onProgress Progress) error {
	frames := (len(image) + 7) / 8
	init := [8]byte{0x55, 0x55, 0x00, 0x01, byte(frames), byte(frames >> 8), 0x00, 0x03}
	if err := u.link.Send(canlink.Frame{ID: initID, Data: init[:]}); err != nil {
		return fmt.Errorf("upload: send init frame: %w", err)
	}

	ack, err := u.link.Recv(ackTimeout)
	if err != nil {
		return fmt.Errorf("upload: waiting for ack: %w", err)
	}
	if ack.ID != ackID {
		return fmt.Errorf("upload: expected ack on 0x%x, got 0x%x", ackID, ack.ID)
	}

	sent := 0
	for sent < len(image) {
		end := sent + 8
		if end > len(image) {
			end = len(image)
		}
		chunk := image[sent:end]
		if err := u.link.Send(canlink.Frame{ID: dataID, Data: chunk}); err != nil {
			return fmt.Errorf("upload: send chunk at offset %d: %w", sent, err)
		}
		sent = end
		if onProgress != nil {
			onProgress(sent, len(image))
		}
		time.Sleep(frameDelay)
	}

	deadline := time.Now().Add(10 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := u.link.Recv(time.Until(deadline)); err != nil {
			break
		}
	}

	return nil
}
