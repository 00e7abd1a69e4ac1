package semver

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"1.0.0", false},
		{" 2.3.4 ", false},
		{"1.0.0-alpha.1", false},
		{"1", true},
		{"v1.0.0", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("semver:compat_test - ParseVersion(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestExtractMajorFromRange(t *testing.T) {
	if got := ExtractMajorFromRange("3"); got != 3 {
		t.Errorf("semver:compat_test - ExtractMajorFromRange(3) = %d", got)
	}
	if got := ExtractMajorFromRange("^3.0.0"); got != -1 {
		t.Errorf("semver:compat_test - ExtractMajorFromRange(^3.0.0) = %d, want -1", got)
	}
}

func TestGate(t *testing.T) {
	tests := []struct {
		name    string
		local   string
		rng     string
		version string
		want    bool
	}{
		{"same major by default", "1.2.0", "", "1.9.3", true},
		{"prerelease of same major", "1.2.0", "", "1.3.0-beta.1", true},
		{"other major by default", "1.2.0", "", "2.0.0", false},
		{"major only", "", "2", "2.4.0", true},
		{"major only mismatch", "", "2", "3.0.0", false},
		{"caret range", "", "^1.2.0", "1.1.0", false},
		{"comparison range", "", ">=1.0.0 <3.0.0", "2.9.9", true},
		{"garbage version", "1.0.0", "", "latest", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGate(tt.local, tt.rng)
			if err != nil {
				t.Fatalf("semver:compat_test - NewGate: %v", err)
			}
			if got := g.Allows(tt.version); got != tt.want {
				t.Errorf("semver:compat_test - %s.Allows(%q) = %v, want %v", g, tt.version, got, tt.want)
			}
		})
	}
}

func TestNewGate_Invalid(t *testing.T) {
	if _, err := NewGate("not-a-version", ""); err == nil {
		t.Error("semver:compat_test - expected error for invalid local version")
	}
	if _, err := NewGate("1.0.0", ">>>1"); err == nil {
		t.Error("semver:compat_test - expected error for invalid range")
	}
}
