package money

import "testing"

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"empty", "", 0},
		{"zero", "0", 0},
		{"whole", "10000", 1000000},
		{"two decimals", "1500.50", 150050},
		{"one decimal", "1500.5", 150050},
		{"excess decimals truncated", "1.999", 199},
		{"leading zero fraction", "0.01", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if !ok {
				t.Fatalf("Parse(%q) rejected", tt.in)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_InvalidAmounts(t *testing.T) {
	for _, in := range []string{"-1", "1.2.3", "abc", "10,000"} {
		if _, ok := Parse(in); ok {
			t.Errorf("Parse(%q) accepted, want rejection", in)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		kobo int64
		want string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{150050, "1500.50"},
		{1000000, "10000.00"},
		{-199, "-1.99"},
	}
	for _, tt := range tests {
		if got := Format(tt.kobo); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.kobo, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "10000.00", "500000.00", "1.99"} {
		kobo, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) rejected", s)
		}
		if got := Format(kobo); got != s {
			t.Errorf("Format(Parse(%q)) = %q", s, got)
		}
	}
}
