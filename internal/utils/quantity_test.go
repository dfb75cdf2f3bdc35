package utils

import "testing"

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{"binary suffix", "100Gi", 100 * GiB, false},
		{"decimal suffix", "1T", 1_000_000_000_000, false},
		{"plain bytes", "4096", 4096, false},
		{"mebibytes", "512Mi", 512 * MiB, false},
		{"empty", "", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-1Gi", 0, true},
		{"garbage", "lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapacity(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCapacity(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseCapacity(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCapacity(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{100 * GiB, "100Gi"},
		{2 * TiB, "2Ti"},
		{1536 * MiB, "1536Mi"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := FormatCapacity(tt.bytes); got != tt.want {
			t.Errorf("FormatCapacity(%d) = %s, want %s", tt.bytes, got, tt.want)
		}
	}
}
