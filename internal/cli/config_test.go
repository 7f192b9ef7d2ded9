package cli

import "testing"

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{"server_url", "https://alerts.example.com", false},
		{"server_url", "alerts.example.com", true},
		{"server_url", "ftp://alerts.example.com", true},
		{"output", "yaml", false},
		{"output", "xml", true},
		{"jwt_secret", "s3cret", false},
		{"jwt_secret", "  ", true},
		{"colour", "blue", true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			if err := validateSetting(tt.key, tt.value); (err != nil) != tt.wantErr {
				t.Errorf("validateSetting() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDisplayValue(t *testing.T) {
	if got := displayValue("jwt_secret", "s3cret"); got != "(set)" {
		t.Errorf("secret displayed as %q", got)
	}
	if got := displayValue("output", nil); got != "(not set)" {
		t.Errorf("missing value displayed as %q", got)
	}
	if got := displayValue("output", "json"); got != "json" {
		t.Errorf("output displayed as %q", got)
	}
}
