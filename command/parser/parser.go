/*
 * tcbsl - Command line tokenizer and dispatch table.
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

// Package parser turns one line of interactive input into a tcbsl
// verb invocation: SBOOT induction, BSL memory operations, boot
// password extraction, and file transfer, each running against a
// Session's Device.
package parser

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/wrongbaud/tcbsl/config"
	"github.com/wrongbaud/tcbsl/device"
)

// Session bundles the long-lived handles a command needs: the
// acquired Device and the configuration it was built from (solver
// paths, dump directory).
type Session struct {
	Dev *device.Device
	Cfg config.Config
}

type cmd struct {
	name     string
	min      int // minimum unambiguous prefix length
	process  func(*cmdLine, *Session) (bool, error)
	complete func(*cmdLine) []string
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "sboot", min: 2, process: cmdSBoot},
	{name: "upload", min: 2, process: cmdUpload},
	{name: "readaddr", min: 5, process: cmdReadAddr},
	{name: "writeaddr", min: 6, process: cmdWriteAddr},
	{name: "dumpmem", min: 4, process: cmdDumpMem},
	{name: "compressed_read", min: 11, process: cmdCompressedRead},
	{name: "uncompressed_read", min: 3, process: cmdUncompressedRead},
	{name: "send_read_passwords", min: 6, process: cmdSendReadPasswords},
	{name: "send_write_passwords", min: 6, process: cmdSendWritePasswords},
	{name: "erase_sector", min: 7, process: cmdEraseSector},
	{name: "erase_asw", min: 7, process: cmdEraseASW},
	{name: "erase_cal", min: 7, process: cmdEraseCal},
	{name: "erase_cboot", min: 7, process: cmdEraseCBoot},
	{name: "extract_boot_passwords", min: 9, process: cmdExtractBootPasswords},
	{name: "write_file", min: 7, process: cmdWriteFile},
	{name: "reset", min: 3, process: cmdReset},
	{name: "bye", min: 3, process: cmdBye},
}

// ProcessCommand parses and runs one line against sess, returning
// true when the session should end.
func ProcessCommand(commandLine string, sess *Session) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	if len(match) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].process(&line, sess)
}

// CompleteCmd returns the command names matching the partial line,
// for liner's tab completion.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	if !line.isEOL() {
		match := matchList(name)
		if len(match) == 1 && match[0].complete != nil {
			return match[0].complete(&line)
		}
		return nil
	}

	var matches []string
	for _, m := range cmdList {
		if strings.HasPrefix(m.name, name) {
			matches = append(matches, m.name)
		}
	}
	return matches
}

func matchCommand(m cmd, name string) bool {
	if len(name) == 0 || len(name) > len(m.name) {
		return false
	}
	if name != m.name[:len(name)] {
		return false
	}
	return len(name) >= m.min
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			match = append(match, m)
		}
	}
	return match
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool {
	l.skipSpace()
	return l.pos >= len(l.line) || l.line[l.pos] == '#'
}

// getWord reads a run of non-space characters, lower-cased.
func (l *cmdLine) getWord() string {
	l.skipSpace()
	if l.isEOL() {
		return ""
	}
	start := l.pos
	for l.pos < len(l.line) && !unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

// getHex32 reads the next word and parses it as a 32-bit hex value,
// with or without a "0x" prefix.
func (l *cmdLine) getHex32() (uint32, error) {
	word := l.getWord()
	if word == "" {
		return 0, errors.New("parser: expected a hex value")
	}
	word = strings.TrimPrefix(strings.ToLower(word), "0x")
	v, err := strconv.ParseUint(word, 16, 32)
	if err != nil {
		return 0, errors.New("parser: invalid hex value: " + word)
	}
	return uint32(v), nil
}

// getPath reads a quoted or bare filesystem path.
func (l *cmdLine) getPath() (string, error) {
	l.skipSpace()
	if l.isEOL() {
		return "", errors.New("parser: expected a file path")
	}
	if l.line[l.pos] == '"' {
		l.pos++
		start := l.pos
		for l.pos < len(l.line) && l.line[l.pos] != '"' {
			l.pos++
		}
		path := l.line[start:l.pos]
		if l.pos < len(l.line) {
			l.pos++
		}
		return path, nil
	}
	return l.getWord(), nil
}
