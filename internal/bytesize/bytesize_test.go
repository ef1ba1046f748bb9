package bytesize

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"0", 0, false},
		{"4096", 4096, false},
		{"512B", 512, false},
		{"64k", 64 * KB, false},
		{"64KiB", 64 * KiB, false},
		{"1MiB", MiB, false},
		{"1mi", MiB, false},
		{"2M", 2 * MB, false},
		{" 1 GiB ", GiB, false},
		{"1.5Ki", 1536, false},
		{"", 0, true},
		{"-1", 0, true},
		{"1PB", 0, true},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMarshalTextRoundTrip(t *testing.T) {
	tests := []struct {
		size ByteSize
		text string
	}{
		{0, "0"},
		{1000, "1000"},
		{KiB, "1KiB"},
		{1536, "1536"},
		{MiB, "1MiB"},
		{3 * GiB, "3GiB"},
	}

	for _, tt := range tests {
		text, err := tt.size.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", tt.size, err)
		}
		if string(text) != tt.text {
			t.Errorf("MarshalText(%d) = %q, want %q", tt.size, text, tt.text)
		}

		var back ByteSize
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != tt.size {
			t.Errorf("round trip of %d gave %d", tt.size, back)
		}
	}
}
