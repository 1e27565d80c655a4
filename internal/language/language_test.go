package language

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		hint    string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"auto", "", false},
		{"en", "en", false},
		{"EN", "en", false},
		{" es ", "es", false},
		{"en_US", "en", false},
		{"pt-BR", "pt", false},
		{"zh", "zh", false},
		{"invalid", "", true},
		{"xx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			got, err := Normalize(tt.hint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.hint, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.hint, got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if l := Lookup("en"); l.Name != "English" {
		t.Errorf("Lookup(en).Name = %q", l.Name)
	}
	if l := Lookup("invalid"); l != Auto {
		t.Errorf("Lookup(invalid) = %+v, want Auto", l)
	}
}

func TestListUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, l := range List() {
		if l.Code == "" || seen[l.Code] {
			t.Errorf("bad or duplicate code %q", l.Code)
		}
		seen[l.Code] = true
	}
	if len(seen) < 50 {
		t.Errorf("only %d languages listed", len(seen))
	}
}

func TestLabel(t *testing.T) {
	if got := Label(""); got != "Auto-detect" {
		t.Errorf("Label(\"\") = %q", got)
	}
	if got := Label("es"); !strings.Contains(got, "Spanish") || !strings.HasSuffix(got, "(es)") {
		t.Errorf("Label(es) = %q", got)
	}
}
