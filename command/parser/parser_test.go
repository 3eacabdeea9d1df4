package parser

import (
	"testing"

	"github.com/wrongbaud/tcbsl/device"
	"github.com/wrongbaud/tcbsl/hw/phyline"
)

func TestProcessCommandUnknown(t *testing.T) {
	_, err := ProcessCommand("frobnicate", &Session{})
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestProcessCommandAmbiguousPrefix(t *testing.T) {
	// "erase_c" is a 7-char prefix matching both erase_cal and
	// erase_cboot (both min 7), so it must be rejected as ambiguous.
	_, err := ProcessCommand("erase_c", &Session{})
	if err == nil {
		t.Fatal("expected an ambiguous command error")
	}
}

func TestProcessCommandBye(t *testing.T) {
	done, err := ProcessCommand("bye", &Session{})
	if err != nil {
		t.Fatalf("ProcessCommand(bye): %v", err)
	}
	if !done {
		t.Fatal("bye should end the session")
	}
}

func TestProcessCommandAcceptsUnambiguousPrefix(t *testing.T) {
	// "rese" is a 4-char prefix of "reset" (min 3), and not a prefix
	// of any other verb, so it should resolve unambiguously.
	sess := &Session{Dev: &device.Device{Line: phyline.Null{}}}
	done, err := ProcessCommand("rese", sess)
	if err != nil {
		t.Fatalf("ProcessCommand(rese): %v", err)
	}
	if done {
		t.Fatal("reset should not end the session")
	}
}

func TestProcessCommandRejectsTooShortPrefix(t *testing.T) {
	// "re" is shorter than reset's min (3), so it must not match.
	_, err := ProcessCommand("re", &Session{})
	if err == nil {
		t.Fatal("expected an error for a too-short prefix")
	}
}

func TestCompleteCmdListsMatchingVerbs(t *testing.T) {
	matches := CompleteCmd("eras")
	want := map[string]bool{
		"erase_sector": false,
		"erase_asw":    false,
		"erase_cal":    false,
		"erase_cboot":  false,
	}
	for _, m := range matches {
		if _, ok := want[m]; !ok {
			t.Fatalf("unexpected completion %q", m)
		}
		want[m] = true
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("expected %q among completions, got %v", name, matches)
		}
	}
}

func TestCmdLineGetHex32(t *testing.T) {
	l := &cmdLine{line: "0xDEADBEEF rest"}
	v, err := l.getHex32()
	if err != nil {
		t.Fatalf("getHex32: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Fatalf("getHex32 = %#x, want 0xDEADBEEF", v)
	}
}

func TestCmdLineGetPathQuoted(t *testing.T) {
	l := &cmdLine{line: `"/tmp/my file.bin" trailing`}
	path, err := l.getPath()
	if err != nil {
		t.Fatalf("getPath: %v", err)
	}
	if path != "/tmp/my file.bin" {
		t.Fatalf("getPath = %q, want %q", path, "/tmp/my file.bin")
	}
}

func TestCmdLineIsEOLOnComment(t *testing.T) {
	l := &cmdLine{line: "   # a comment"}
	if !l.isEOL() {
		t.Fatal("expected a comment-only line to read as EOL")
	}
}
