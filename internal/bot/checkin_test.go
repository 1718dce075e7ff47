package bot

import (
	"testing"

	"github.com/zulandar/rollcall/internal/apperr"
)

func TestParseCheckinCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CheckinCode
		wantErr bool
	}{
		{"gps", "gps:ALG101|3f2a", CheckinCode{ModeGPS, "ALG101", "3f2a"}, false},
		{"direct", "direct:BIO|abc-def", CheckinCode{ModeDirect, "BIO", "abc-def"}, false},
		{"upper-case mode", "GPS:ALG|s1", CheckinCode{ModeGPS, "ALG", "s1"}, false},
		{"surrounding space", "  gps:ALG|s1 ", CheckinCode{ModeGPS, "ALG", "s1"}, false},
		{"unknown mode", "wifi:ALG|s1", CheckinCode{}, true},
		{"no separator", "gps:ALG-s1", CheckinCode{}, true},
		{"no colon", "ALG|s1", CheckinCode{}, true},
		{"empty course", "gps:|s1", CheckinCode{}, true},
		{"empty session", "gps:ALG|", CheckinCode{}, true},
		{"extra pipe", "gps:ALG|s1|s2", CheckinCode{}, true},
		{"inner space", "gps:AL G|s1", CheckinCode{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCheckinCode(tt.input)
			if tt.wantErr {
				if !apperr.IsValidation(err) {
					t.Fatalf("ParseCheckinCode(%q) error = %v, want ValidationError", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCheckinCode(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCheckinCode(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheckinCode_String(t *testing.T) {
	c := CheckinCode{Mode: ModeGPS, CourseID: "ALG", SessionID: "s1"}
	if got := c.String(); got != "gps:ALG|s1" {
		t.Errorf("String() = %q", got)
	}
	parsed, err := ParseCheckinCode(c.String())
	if err != nil || parsed != c {
		t.Errorf("parse of String() = %+v, %v", parsed, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text         string
		wantKind     Kind
		wantCommand  Command
		wantPrefixed bool
	}{
		{"cancel", KindCancel, CmdCancel, false},
		{"/cancel", KindCancel, CmdCancel, true},
		{"gps:ALG|s1", KindCheckin, "", false},
		{"direct:ALG|s1", KindCheckin, "", false},
		{"25.0,121.0", KindLocation, "", false},
		{"loc: 25.0 121.0", KindLocation, "", false},
		{"register", KindCommand, CmdRegister, false},
		{"Register", KindCommand, CmdRegister, false},
		{"!profile", KindCommand, CmdProfile, true},
		{"<@U0BOT> recent", KindCommand, CmdRecent, false},
		{"123456", KindText, "", false},
		{"join the club", KindText, "", false},
		{"hello", KindText, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Classify(InboundMessage{Text: tt.text})
			if got.Kind != tt.wantKind || got.Command != tt.wantCommand || got.Prefixed != tt.wantPrefixed {
				t.Errorf("Classify(%q) = %v/%q/%v, want %v/%q/%v",
					tt.text, got.Kind, got.Command, got.Prefixed, tt.wantKind, tt.wantCommand, tt.wantPrefixed)
			}
		})
	}
}

func TestStripMentions(t *testing.T) {
	if got := StripMentions("<@!1234> gps:A|s1"); got != "gps:A|s1" {
		t.Errorf("StripMentions = %q", got)
	}
}
