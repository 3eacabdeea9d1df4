/*
 * tcbsl - Tool configuration file parser.
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

// Package config loads the tool's configuration file: a line-oriented
// `#`-commented `key = value` format (same tokenizer shape as the
// teacher's device configparser, simplified since tcbsl configures
// scalar tool settings rather than a registry of emulated devices).
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Config holds every tunable named in spec §4.12.
type Config struct {
	CANInterface string // default "can0"
	Variant      string // "simos8" or "simos18"

	ResetPin int // default 23
	PWMPinA  int // default 12
	PWMPinB  int // default 13
	PWMFreq  int // Hz, default 3210

	CRCDelayUS       int // default 2000 (2ms)
	SeedStart        string
	NoneMsgThreshold int // default 60

	KeySolverPath     string
	PreimageSolverPath string

	DumpDir string
	LogDir  string
}

// Defaults returns the configuration the tool assumes when a key is
// absent from the file.
func Defaults() Config {
	return Config{
		CANInterface:     "can0",
		Variant:          "simos18",
		ResetPin:         23,
		PWMPinA:          12,
		PWMPinB:          13,
		PWMFreq:          3210,
		CRCDelayUS:       2000,
		NoneMsgThreshold: 60,
		DumpDir:          ".",
		LogDir:           ".",
	}
}

// optionLine is one line being tokenized, in the teacher's
// configparser idiom: a line and a scan cursor.
type optionLine struct {
	line string
	pos  int
}

// Load reads name, starting from Defaults() and overwriting any key
// the file sets.
func Load(name string) (Config, error) {
	cfg := Defaults()

	file, err := os.Open(name)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	lineNumber := 0
	reader := bufio.NewReader(file)
	for {
		raw, rerr := reader.ReadString('\n')
		lineNumber++
		if len(raw) == 0 && rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return cfg, rerr
		}

		ol := optionLine{line: raw}
		if err := ol.apply(&cfg, lineNumber); err != nil {
			return cfg, err
		}
		if rerr != nil {
			break
		}
	}
	return cfg, nil
}

func (l *optionLine) apply(cfg *Config, lineNumber int) error {
	key := l.parseKey()
	if key == "" {
		return nil
	}

	l.skipSpace()
	if l.isEOL() || l.line[l.pos] != '=' {
		return fmt.Errorf("config: line %d: %q has no value", lineNumber, key)
	}
	l.pos++
	l.skipSpace()
	value := l.parseValue()

	return assign(cfg, strings.ToUpper(key), value)
}

func assign(cfg *Config, key, value string) error {
	switch key {
	case "CAN_INTERFACE":
		cfg.CANInterface = value
	case "VARIANT":
		cfg.Variant = strings.ToLower(value)
	case "RESET_PIN":
		return setInt(&cfg.ResetPin, value)
	case "PWM_PIN_A":
		return setInt(&cfg.PWMPinA, value)
	case "PWM_PIN_B":
		return setInt(&cfg.PWMPinB, value)
	case "PWM_FREQ":
		return setInt(&cfg.PWMFreq, value)
	case "CRC_DELAY":
		return setInt(&cfg.CRCDelayUS, value)
	case "SEED_START":
		cfg.SeedStart = value
	case "NONE_MSG_CNT_THRESHOLD":
		return setInt(&cfg.NoneMsgThreshold, value)
	case "KEY_SOLVER":
		cfg.KeySolverPath = value
	case "PREIMAGE_SOLVER":
		cfg.PreimageSolverPath = value
	case "DUMP_DIR":
		cfg.DumpDir = value
	case "LOG_DIR":
		cfg.LogDir = value
	default:
		return fmt.Errorf("config: unknown key %q", key)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: invalid integer %q: %w", value, err)
	}
	*dst = n
	return nil
}

func (l *optionLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *optionLine) isEOL() bool {
	if l.pos >= len(l.line) {
		return true
	}
	return l.line[l.pos] == '#'
}

// parseKey consumes a leading identifier: letters, digits,
// underscores.
func (l *optionLine) parseKey() string {
	l.skipSpace()
	if l.isEOL() {
		return ""
	}
	start := l.pos
	for l.pos < len(l.line) {
		by := l.line[l.pos]
		if unicode.IsLetter(rune(by)) || unicode.IsDigit(rune(by)) || by == '_' {
			l.pos++
			continue
		}
		break
	}
	return l.line[start:l.pos]
}

// parseValue consumes the remainder of the line as a value, honoring
// a quoted string and stripping a trailing comment.
func (l *optionLine) parseValue() string {
	if l.isEOL() {
		return ""
	}
	if l.line[l.pos] == '"' {
		l.pos++
		start := l.pos
		for l.pos < len(l.line) && l.line[l.pos] != '"' {
			l.pos++
		}
		value := l.line[start:l.pos]
		return value
	}

	start := l.pos
	end := len(l.line)
	if idx := strings.IndexByte(l.line[l.pos:], '#'); idx >= 0 {
		end = l.pos + idx
	}
	return strings.TrimSpace(l.line[start:end])
}
