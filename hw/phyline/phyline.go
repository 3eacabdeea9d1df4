/*
 * tcbsl - Physical line driver: reset pulse and induction PWM.
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

// Package phyline drives the two GPIO signals SBOOT induction depends
// on (C1): a reset pulse and two phase-offset PWM square waves.
// Timing is delegated to host PWM hardware via periph.io rather than
// software bit-banging, since induction is sensitive to jitter.
package phyline

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Line is the interface the SBOOT driver needs from the physical
// layer; Host is the periph.io-backed implementation, Null is a no-op
// stand-in for the in-memory simulator and for machines with no GPIO.
type Line interface {
	ResetPulse(low time.Duration) error
	PWMStart(cfg PWMConfig) error
	PWMStop() error
}

// PWMConfig describes the two induction square waves.
type PWMConfig struct {
	Frequency physic.Frequency // default 3210 Hz
}

// Host drives real hardware GPIOs through periph.io.
type Host struct {
	reset   gpio.PinIO
	pwmA    gpio.PinIO
	pwmB    gpio.PinIO
	started bool
}

// pinNames are the BCM GPIO numbers named in spec §6: reset on 23,
// PWM on 12 and 13.
const (
	resetPinName = "GPIO23"
	pwmAPinName  = "GPIO12"
	pwmBPinName  = "GPIO13"
)

// OpenHost registers periph.io host drivers and resolves the three
// GPIO lines the driver needs.
func OpenHost() (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	h := &Host{
		reset: gpioreg.ByName(resetPinName),
		pwmA:  gpioreg.ByName(pwmAPinName),
		pwmB:  gpioreg.ByName(pwmBPinName),
	}
	return h, nil
}

// ResetPulse drives the reset line low (active-low, internal pull-up
// assumed wired per spec §6) for at least low, then releases it high.
func (h *Host) ResetPulse(low time.Duration) error {
	if err := h.reset.Out(gpio.Low); err != nil {
		return err
	}
	if low < 10*time.Millisecond {
		low = 10 * time.Millisecond
	}
	time.Sleep(low)
	return h.reset.Out(gpio.High)
}

// PWMStart emits channel A at 50% duty starting at phase 0 and
// channel B at 25% duty starting three quarters of a cycle later, both at
// cfg.Frequency (3210 Hz by default). Hardware PWM channels are used
// where periph.io's driver for the pin supports it; bit-banged PWM is
// deliberately not implemented here.
func (h *Host) PWMStart(cfg PWMConfig) error {
	freq := cfg.Frequency
	if freq == 0 {
		freq = 3210 * physic.Hertz
	}

	if err := h.pwmA.PWM(gpio.DutyHalf, freq); err != nil {
		return err
	}

	period := time.Second / time.Duration(freq/physic.Hertz)
	time.Sleep(period * 3 / 4)

	if err := h.pwmB.PWM(gpio.DutyMax/4, freq); err != nil {
		return err
	}

	h.started = true
	time.Sleep(time.Second) // let the induction waveform stabilize
	return nil
}

// PWMStop releases both PWM outputs.
func (h *Host) PWMStop() error {
	if !h.started {
		return nil
	}
	h.started = false
	if err := h.pwmA.Out(gpio.Low); err != nil {
		return err
	}
	return h.pwmB.Out(gpio.Low)
}

// Null satisfies Line without touching any hardware, for tests and
// for the in-memory simulator.
type Null struct{}

func (Null) ResetPulse(time.Duration) error  { return nil }
func (Null) PWMStart(PWMConfig) error        { return nil }
func (Null) PWMStop() error                  { return nil }
