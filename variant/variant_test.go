package variant

import "testing"

func TestNewSimos8Regions(t *testing.T) {
	v, err := New(Simos8)
	if err != nil {
		t.Fatalf("New(Simos8): %v", err)
	}
	if len(v.ASW()) != 3 {
		t.Fatalf("ASW() = %d regions, want 3", len(v.ASW()))
	}
	if _, ok := v.Region("cal"); !ok {
		t.Fatal("expected a cal region for simos8")
	}
	if _, ok := v.Region("cboot"); !ok {
		t.Fatal("expected a cboot region for simos8")
	}
	if _, ok := v.Region("nonexistent"); ok {
		t.Fatal("Region should report false for an unknown name")
	}
}

func TestNewSimos18Sectors(t *testing.T) {
	v, err := New(Simos18)
	if err != nil {
		t.Fatalf("New(Simos18): %v", err)
	}
	sectors := v.Sectors()
	if len(sectors) != len(sectorMapTC1791) {
		t.Fatalf("Sectors() = %d entries, want %d", len(sectors), len(sectorMapTC1791))
	}

	base := uint32(0xA0000000)
	for i, s := range sectors {
		if s.Base != base {
			t.Fatalf("sector %d base = %#x, want %#x", i, s.Base, base)
		}
		if s.Size != sectorMapTC1791[i] {
			t.Fatalf("sector %d size = %#x, want %#x", i, s.Size, sectorMapTC1791[i])
		}
		base += s.Size
	}
}

func TestNewUnknownTarget(t *testing.T) {
	if _, err := New(Target(99)); err == nil {
		t.Fatal("expected an error for an unknown target")
	}
}

func TestTargetString(t *testing.T) {
	cases := map[Target]string{
		Simos18:     "simos18",
		Simos8:      "simos8",
		Target(123): "unknown",
	}
	for target, want := range cases {
		if got := target.String(); got != want {
			t.Errorf("Target(%d).String() = %q, want %q", target, got, want)
		}
	}
}
