/*
 * tcbsl - Target variant and flash region map.
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

// Package variant holds the per-target tables (sector maps, oracle
// result addresses, part numbers) that distinguish Simos 8 from
// Simos 18 ECUs.
package variant

import "errors"

// Target names the Tricore ECU family member in use.
type Target int

const (
	Simos18 Target = 1 + iota
	Simos8
)

func (t Target) String() string {
	switch t {
	case Simos18:
		return "simos18"
	case Simos8:
		return "simos8"
	default:
		return "unknown"
	}
}

// Region is a named flash region: a base address and its size in bytes.
type Region struct {
	Name string
	Base uint32
	Size uint32
}

// OracleAddrs names the two result words the stage-two BSL leaves in
// SRAM after a CRC probe validator trigger.
type OracleAddrs struct {
	AddressReached uint32
	CurrentCRC     uint32
}

// Variant bundles every constant that differs between ECU families.
type Variant struct {
	Target     Target
	PartNumber [28]byte // literal correlated by the validator
	CRCEndAddr uint32
	Oracle     OracleAddrs
	regions    []Region
	sectors    []Region // whole-chip sector map, erase granularity
}

// ProbeAddrs are the four fixed boot-password probe start addresses,
// identical across both variants.
var ProbeAddrs = [4]uint32{0x8001420C, 0x80014210, 0x80014214, 0x80014218}

var simos8PartNumber = [28]byte{
	0x4E, 0x42, 0x30, 0x65, 0x00, 0x00, 0x53, 0x38,
	0x35, 0x32, 0x31, 0x2D, 0x36, 0x35, 0x30, 0x53,
	0x38, 0x35, 0x35, 0x32, 0x30, 0x35, 0x2D, 0x2D,
	0x2D, 0x2D, 0x2D, 0x2D,
}

// Simos18 part number literal is device-specific; the table holds all
// zero bytes and nothing in the tool fills it in.
var simos18PartNumber = [28]byte{}

// Sector lengths for tc1791 PMEM routines (Simos 18).
var sectorMapTC1791 = []uint32{
	0x4000, 0x4000, 0x4000, 0x4000,
	0x4000, 0x4000, 0x4000, 0x4000,
	0x20000, 0x40000, 0x40000, 0x40000,
	0x40000, 0x40000, 0x40000, 0x40000,
}

// New builds the Variant table for the given target.
func New(t Target) (Variant, error) {
	switch t {
	case Simos8:
		return Variant{
			Target:     Simos8,
			PartNumber: simos8PartNumber,
			CRCEndAddr: 0xA03FFFFF,
			Oracle: OracleAddrs{
				AddressReached: 0xC03FD488,
				CurrentCRC:     0xC03FD490,
			},
			regions: []Region{
				{Name: "asw0", Base: 0xA0080000, Size: 0x80000},
				{Name: "asw1", Base: 0xA0100000, Size: 0x80000},
				{Name: "asw2", Base: 0xA0180000, Size: 0x80000},
				{Name: "cal", Base: 0xA0040000, Size: 0x40000},
				{Name: "cboot", Base: 0xA0020000, Size: 0x20000},
			},
		}, nil
	case Simos18:
		v := Variant{
			Target:     Simos18,
			PartNumber: simos18PartNumber,
			CRCEndAddr: 0xA0FFFFFF,
			Oracle: OracleAddrs{
				AddressReached: 0xD0010770,
				CurrentCRC:     0xD0010778,
			},
		}
		base := uint32(0xA0000000)
		for i, size := range sectorMapTC1791 {
			v.sectors = append(v.sectors, Region{Name: sectorName(i), Base: base, Size: size})
			base += size
		}
		return v, nil
	default:
		return Variant{}, errors.New("variant: unknown target")
	}
}

func sectorName(i int) string {
	const hexDigits = "0123456789abcdef"
	return "ps" + string(hexDigits[i])
}

// Region returns the named flash region ("asw0", "asw1", "asw2",
// "cal", "cboot") for this variant.
func (v Variant) Region(name string) (Region, bool) {
	for _, r := range v.regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// ASW returns every application-software region, in order.
func (v Variant) ASW() []Region {
	var out []Region
	for _, r := range v.regions {
		if len(r.Name) >= 3 && r.Name[:3] == "asw" {
			out = append(out, r)
		}
	}
	return out
}

// Sectors returns the whole-chip sector map (Simos 18 only; Simos 8
// erases are region-granularity, see Region).
func (v Variant) Sectors() []Region {
	return v.sectors
}
