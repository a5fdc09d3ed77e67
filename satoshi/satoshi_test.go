package satoshi

import "testing"

func TestFromDecimalString(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"1", 100000000, false},
		{"0.00000001", 1, false},
		{"50.12345678", 5012345678, false},
		{"21000000", 2100000000000000, false},
		{"0.000000001", 0, true},
		{"not-a-number", 0, true},
	}

	for _, tt := range tests {
		got, err := FromDecimalString(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("FromDecimalString(%q): expected error, got nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("FromDecimalString(%q): unexpected error: %s", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FromDecimalString(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
