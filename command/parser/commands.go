/*
 * tcbsl - Verb implementations.
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

package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wrongbaud/tcbsl/bsl/upload"
	"github.com/wrongbaud/tcbsl/memops"
	"github.com/wrongbaud/tcbsl/oracle"
	"github.com/wrongbaud/tcbsl/sboot"
	"github.com/wrongbaud/tcbsl/util/hexfmt"
)

// cmdSBoot runs the full SBOOT induction sequence, retrieves the
// seed, solves and submits the key, leaving the target parked in the
// factory shell.
func cmdSBoot(_ *cmdLine, sess *Session) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shell := sboot.New(sess.Dev, sboot.Config{
		CRCDelay:         time.Duration(sess.Dev.CRCDelayUS) * time.Microsecond,
		NoneMsgThreshold: sess.Dev.NoneMsgThreshold,
	})
	if err := shell.EnterShell(ctx); err != nil {
		return false, fmt.Errorf("sboot: %w", err)
	}

	seed, err := shell.RetrieveSeed(ctx)
	if err != nil {
		return false, fmt.Errorf("sboot: %w", err)
	}
	key, err := sess.Dev.Keys.Solve(ctx, seed)
	if err != nil {
		return false, fmt.Errorf("sboot: %w", err)
	}
	if err := shell.SubmitKey(key); err != nil {
		return false, fmt.Errorf("sboot: %w", err)
	}

	fmt.Println("Success")
	return false, nil
}

// cmdUpload streams a stage-two BSL image to the device over the raw
// CAN ids the SBOOT shell listens on.
func cmdUpload(line *cmdLine, sess *Session) (bool, error) {
	path, err := line.getPath()
	if err != nil {
		return false, err
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("upload: %w", err)
	}

	progress := func(sent, total int) {
		fmt.Printf("\rupload: %d/%d bytes", sent, total)
	}
	if err := upload.New(sess.Dev.CAN).Send(image, progress); err != nil {
		fmt.Println()
		return false, fmt.Errorf("upload: %w", err)
	}
	fmt.Println()
	fmt.Println("Success")
	return false, nil
}

func cmdReadAddr(line *cmdLine, sess *Session) (bool, error) {
	addr, err := line.getHex32()
	if err != nil {
		return false, err
	}
	value, err := memops.New(sess.Dev.CAN).Read32(addr)
	if err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println(hexfmt.Word(value))
	return false, nil
}

func cmdWriteAddr(line *cmdLine, sess *Session) (bool, error) {
	addr, err := line.getHex32()
	if err != nil {
		return false, err
	}
	value, err := line.getHex32()
	if err != nil {
		return false, err
	}
	if err := memops.New(sess.Dev.CAN).Write32(addr, value); err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

// cmdDumpMem dumps every application-software region plus the
// calibration and customer-boot regions to files under the
// configured dump directory, using the uncompressed read path.
func cmdDumpMem(_ *cmdLine, sess *Session) (bool, error) {
	mem := memops.New(sess.Dev.CAN)
	regions := sess.Dev.Variant.ASW()
	if cal, ok := sess.Dev.Variant.Region("cal"); ok {
		regions = append(regions, cal)
	}
	if cboot, ok := sess.Dev.Variant.Region("cboot"); ok {
		regions = append(regions, cboot)
	}

	for _, r := range regions {
		dest := filepath.Join(sess.Cfg.DumpDir, r.Name+".bin")
		f, err := os.Create(dest)
		if err != nil {
			return false, fmt.Errorf("dumpmem: %w", err)
		}
		err = mem.ReadUncompressed(r.Base, r.Size, f)
		f.Close()
		if err != nil {
			fmt.Println(formatFailure(err))
			return false, fmt.Errorf("dumpmem: region %s: %w", r.Name, err)
		}
		fmt.Printf("dumpmem: wrote %s (%d bytes)\n", dest, r.Size)
	}
	fmt.Println("Success")
	return false, nil
}

func cmdCompressedRead(line *cmdLine, sess *Session) (bool, error) {
	addr, err := line.getHex32()
	if err != nil {
		return false, err
	}
	size, err := line.getHex32()
	if err != nil {
		return false, err
	}
	path, err := line.getPath()
	if err != nil {
		return false, err
	}
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("compressed_read: %w", err)
	}
	defer f.Close()

	if err := memops.New(sess.Dev.CAN).ReadCompressed(addr, size, f); err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

func cmdUncompressedRead(line *cmdLine, sess *Session) (bool, error) {
	addr, err := line.getHex32()
	if err != nil {
		return false, err
	}
	size, err := line.getHex32()
	if err != nil {
		return false, err
	}
	path, err := line.getPath()
	if err != nil {
		return false, err
	}
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("uncompressed_read: %w", err)
	}
	defer f.Close()

	if err := memops.New(sess.Dev.CAN).ReadUncompressed(addr, size, f); err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

func cmdSendReadPasswords(line *cmdLine, sess *Session) (bool, error) {
	return sendPasswords(line, sess, false, memops.ReadPasswordUCB)
}

func cmdSendWritePasswords(line *cmdLine, sess *Session) (bool, error) {
	return sendPasswords(line, sess, true, memops.WritePasswordUCB)
}

func sendPasswords(line *cmdLine, sess *Session, write bool, ucb byte) (bool, error) {
	pw1, err := line.getHex32()
	if err != nil {
		return false, err
	}
	pw2, err := line.getHex32()
	if err != nil {
		return false, err
	}
	if err := memops.New(sess.Dev.CAN).SendPasswords(pw1, pw2, write, ucb); err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

func cmdEraseSector(line *cmdLine, sess *Session) (bool, error) {
	addr, err := line.getHex32()
	if err != nil {
		return false, err
	}
	size, err := line.getHex32()
	if err != nil {
		return false, err
	}
	if err := memops.New(sess.Dev.CAN).Erase(addr, size); err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

func cmdEraseASW(_ *cmdLine, sess *Session) (bool, error) {
	mem := memops.New(sess.Dev.CAN)
	for _, r := range sess.Dev.Variant.ASW() {
		if err := mem.Erase(r.Base, r.Size); err != nil {
			fmt.Println(formatFailure(err))
			return false, fmt.Errorf("erase_asw: region %s: %w", r.Name, err)
		}
	}
	fmt.Println("Success")
	return false, nil
}

func cmdEraseCal(_ *cmdLine, sess *Session) (bool, error) {
	return eraseNamedRegion(sess, "cal")
}

func cmdEraseCBoot(_ *cmdLine, sess *Session) (bool, error) {
	return eraseNamedRegion(sess, "cboot")
}

func eraseNamedRegion(sess *Session, name string) (bool, error) {
	region, ok := sess.Dev.Variant.Region(name)
	if !ok {
		return false, errors.New("erase: variant has no region named " + name)
	}
	if err := memops.New(sess.Dev.CAN).Erase(region.Base, region.Size); err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

// cmdExtractBootPasswords runs the four-probe CRC-oracle recovery
// using the stage-two BSL image named on the command line.
func cmdExtractBootPasswords(line *cmdLine, sess *Session) (bool, error) {
	path, err := line.getPath()
	if err != nil {
		return false, err
	}
	image, err := oracle.LoadBSLImage(path)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	passwords, err := oracle.ExtractBootPasswords(ctx, sess.Dev, sess.Dev.Variant, image, sess.Dev.Preimage)
	if err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	for i, pw := range passwords {
		fmt.Printf("password[%d] = %s\n", i, hexfmt.Word(pw))
	}
	fmt.Println("Success")
	return false, nil
}

// cmdWriteFile programs a file's contents into flash starting at
// addr, via the 256-byte page write transaction.
func cmdWriteFile(line *cmdLine, sess *Session) (bool, error) {
	addr, err := line.getHex32()
	if err != nil {
		return false, err
	}
	path, err := line.getPath()
	if err != nil {
		return false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("write_file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("write_file: %w", err)
	}

	progress := func(done, total int64) {
		fmt.Printf("\rwrite_file: %d/%d bytes", done, total)
	}
	err = memops.New(sess.Dev.CAN).ProgramFile(addr, info.Size(), f, progress)
	fmt.Println()
	if err != nil {
		fmt.Println(formatFailure(err))
		return false, err
	}
	fmt.Println("Success")
	return false, nil
}

func cmdReset(_ *cmdLine, sess *Session) (bool, error) {
	if err := sess.Dev.Line.ResetPulse(10 * time.Millisecond); err != nil {
		return false, fmt.Errorf("reset: %w", err)
	}
	fmt.Println("Success")
	return false, nil
}

func cmdBye(_ *cmdLine, _ *Session) (bool, error) {
	return true, nil
}

// formatFailure renders a non-Success failure for CLI display. A
// *frame.Error already formats itself as "<kind>: <hex payload>"; any
// other error (transport timeouts, subprocess failures) prints as-is.
func formatFailure(err error) string {
	return err.Error()
}
