package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tcbsl.cfg")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.CANInterface != "can0" {
		t.Errorf("CANInterface = %q, want can0", cfg.CANInterface)
	}
	if cfg.Variant != "simos18" {
		t.Errorf("Variant = %q, want simos18", cfg.Variant)
	}
	if cfg.NoneMsgThreshold != 60 {
		t.Errorf("NoneMsgThreshold = %d, want 60", cfg.NoneMsgThreshold)
	}
}

func TestLoadOverridesSelectedKeys(t *testing.T) {
	path := writeConfig(t, `
# tcbsl configuration
CAN_INTERFACE = vcan0
VARIANT = SIMOS8
RESET_PIN = 17
CRC_DELAY = 2500  # microseconds
SEED_START = "0xdeadbeef"
KEY_SOLVER = /opt/tcbsl/twister
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CANInterface != "vcan0" {
		t.Errorf("CANInterface = %q, want vcan0", cfg.CANInterface)
	}
	if cfg.Variant != "simos8" {
		t.Errorf("Variant = %q, want simos8 (lower-cased)", cfg.Variant)
	}
	if cfg.ResetPin != 17 {
		t.Errorf("ResetPin = %d, want 17", cfg.ResetPin)
	}
	if cfg.CRCDelayUS != 2500 {
		t.Errorf("CRCDelayUS = %d, want 2500", cfg.CRCDelayUS)
	}
	if cfg.SeedStart != "0xdeadbeef" {
		t.Errorf("SeedStart = %q, want 0xdeadbeef", cfg.SeedStart)
	}
	if cfg.KeySolverPath != "/opt/tcbsl/twister" {
		t.Errorf("KeySolverPath = %q, want /opt/tcbsl/twister", cfg.KeySolverPath)
	}
	// Untouched keys keep their default value.
	if cfg.PWMFreq != 3210 {
		t.Errorf("PWMFreq = %d, want default 3210", cfg.PWMFreq)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "NOT_A_REAL_KEY = 1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadRejectsMissingValue(t *testing.T) {
	path := writeConfig(t, "CAN_INTERFACE\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a key with no value")
	}
}

func TestLoadRejectsNonIntegerField(t *testing.T) {
	path := writeConfig(t, "RESET_PIN = not-a-number\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a non-integer RESET_PIN")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.cfg")); err == nil {
		t.Fatal("expected an error opening a missing file")
	}
}
