package phyline

import "testing"

func TestNullSatisfiesLine(t *testing.T) {
	var line Line = Null{}
	if err := line.ResetPulse(0); err != nil {
		t.Fatalf("ResetPulse: %v", err)
	}
	if err := line.PWMStart(PWMConfig{}); err != nil {
		t.Fatalf("PWMStart: %v", err)
	}
	if err := line.PWMStop(); err != nil {
		t.Fatalf("PWMStop: %v", err)
	}
}
