/*
 * tcbsl - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/wrongbaud/tcbsl/command/parser"
	"github.com/wrongbaud/tcbsl/command/reader"
	"github.com/wrongbaud/tcbsl/config"
	"github.com/wrongbaud/tcbsl/device"
	"github.com/wrongbaud/tcbsl/external"
	"github.com/wrongbaud/tcbsl/hw/canlink"
	"github.com/wrongbaud/tcbsl/hw/phyline"
	"github.com/wrongbaud/tcbsl/util/logger"
	"github.com/wrongbaud/tcbsl/variant"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "tcbsl.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDryRun := getopt.BoolLong("dry-run", 'n', "Use a no-op GPIO line driver (no real hardware)")
	optDebug := getopt.BoolLong("debug", 'd', "Echo log output to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.OpenFile(*optLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("tcbsl started")

	cfg := config.Defaults()
	if _, err := os.Stat(*optConfig); err == nil {
		cfg, err = config.Load(*optConfig)
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	} else {
		Logger.Info("no configuration file found, using defaults", "path", *optConfig)
	}

	dev, err := buildDevice(cfg, Logger, *optDryRun)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}
	defer dev.Close()

	sess := &parser.Session{Dev: dev, Cfg: cfg}

	args := getopt.Args()
	if len(args) > 0 {
		quit, err := parser.ProcessCommand(strings.Join(args, " "), sess)
		if err != nil {
			fmt.Println("Error: " + err.Error())
			os.Exit(1)
		}
		if !quit {
			return
		}
		return
	}

	reader.ConsoleReader(sess)
	Logger.Info("tcbsl shutting down")
}

// buildDevice resolves configuration into the live Device value every
// command runs against: the CAN transport, the physical line driver,
// the target variant table, and the two external solver
// collaborators.
func buildDevice(cfg config.Config, log *slog.Logger, dryRun bool) (*device.Device, error) {
	can, err := canlink.Open(cfg.CANInterface)
	if err != nil {
		return nil, fmt.Errorf("main: open %s: %w", cfg.CANInterface, err)
	}

	var line phyline.Line
	if dryRun {
		line = phyline.Null{}
	} else {
		line, err = phyline.OpenHost()
		if err != nil {
			return nil, fmt.Errorf("main: open gpio lines: %w", err)
		}
	}

	target := variant.Simos18
	if cfg.Variant == "simos8" {
		target = variant.Simos8
	}
	v, err := variant.New(target)
	if err != nil {
		return nil, fmt.Errorf("main: %w", err)
	}

	return &device.Device{
		CAN:              can,
		Line:             line,
		Variant:          v,
		Keys:             external.NewTwister(cfg.KeySolverPath, cfg.SeedStart),
		Preimage:         external.NewCRCPreimage(cfg.PreimageSolverPath),
		Log:              log,
		CRCDelayUS:       cfg.CRCDelayUS,
		SeedStart:        cfg.SeedStart,
		NoneMsgThreshold: cfg.NoneMsgThreshold,
	}, nil
}
