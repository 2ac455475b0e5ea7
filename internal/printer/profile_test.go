package printer

import "testing"

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("TM-T88IV")
	if err != nil {
		t.Fatal(err)
	}
	if p.DotWidth != 512 {
		t.Fatalf("expected 512 dots, got %d", p.DotWidth)
	}

	if _, err := LookupProfile("tm-t88iv"); err != nil {
		t.Fatalf("expected case-insensitive match: %v", err)
	}
	if _, err := LookupProfile("LaserJet"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestProfileNamesSorted(t *testing.T) {
	names := ProfileNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
