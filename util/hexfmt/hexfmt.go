/*
 * tcbsl - Hex rendering for addresses, words, and failure payloads.
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

// Package hexfmt renders addresses, words, and raw byte payloads as
// hex text for the CLI's user-visible output: "Success", a
// hex-rendered failure payload, or "Empty data" for missing replies
// (spec §7).
package hexfmt

import "strings"

var hexMap = "0123456789ABCDEF"

// FormatWords renders a slice of 32-bit words as space-separated
// 8-digit hex.
func FormatWords(str *strings.Builder, words []uint32) {
	for _, full := range words {
		shift := 28
		for range 8 {
			str.WriteByte(hexMap[(full>>shift)&0xf])
			shift -= 4
		}
		str.WriteByte(' ')
	}
}

// FormatBytes renders data as hex pairs, space-separated when space
// is true.
func FormatBytes(str *strings.Builder, space bool, data []byte) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

// FormatByte renders a single byte as two hex digits.
func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// Word renders a 32-bit value as 8 hex digits, no separators.
func Word(v uint32) string {
	var b strings.Builder
	FormatWords(&b, []uint32{v})
	return strings.TrimSpace(b.String())
}

// Payload renders a raw failure payload as the hex text the CLI
// prints for a non-Success status (spec §7's "hex-rendered failure
// payload"). An empty payload renders as "Empty data".
func Payload(data []byte) string {
	if len(data) == 0 {
		return "Empty data"
	}
	var b strings.Builder
	FormatBytes(&b, true, data)
	return strings.TrimSpace(b.String())
}
