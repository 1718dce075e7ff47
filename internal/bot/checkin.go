package bot

import (
	"fmt"
	"strings"

	"github.com/zulandar/rollcall/internal/apperr"
)

// Mode is the check-in code mode.
type Mode string

const (
	// ModeDirect codes are presented at the venue and skip geofencing.
	ModeDirect Mode = "direct"
	// ModeGPS codes are sent to students and are geofence-checked when the
	// course requires it.
	ModeGPS Mode = "gps"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDirect || m == ModeGPS
}

// CheckinCode is the structured payload "<mode>:<courseId>|<sessionId>".
type CheckinCode struct {
	Mode      Mode
	CourseID  string
	SessionID string
}

// String renders the code in wire format.
func (c CheckinCode) String() string {
	return fmt.Sprintf("%s:%s|%s", c.Mode, c.CourseID, c.SessionID)
}

// looksLikeCheckinCode reports whether s starts with a mode prefix.
func looksLikeCheckinCode(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(lower, string(ModeDirect)+":") || strings.HasPrefix(lower, string(ModeGPS)+":")
}

// ParseCheckinCode parses a check-in code. The mode is case-insensitive;
// course and session identifiers are taken verbatim.
func ParseCheckinCode(s string) (CheckinCode, error) {
	s = strings.TrimSpace(s)
	mode, rest, ok := strings.Cut(s, ":")
	if !ok {
		return CheckinCode{}, apperr.NewValidationError("code", "missing mode in %q", s)
	}
	m := Mode(strings.ToLower(mode))
	if !m.Valid() {
		return CheckinCode{}, apperr.NewValidationError("code", "unknown mode %q", mode)
	}
	courseID, sessionID, ok := strings.Cut(rest, "|")
	if !ok {
		return CheckinCode{}, apperr.NewValidationError("code", "want <mode>:<course>|<session>")
	}
	courseID = strings.TrimSpace(courseID)
	sessionID = strings.TrimSpace(sessionID)
	if courseID == "" || sessionID == "" {
		return CheckinCode{}, apperr.NewValidationError("code", "course and session are required")
	}
	if strings.ContainsAny(courseID+sessionID, " \t\n|") {
		return CheckinCode{}, apperr.NewValidationError("code", "malformed code %q", s)
	}
	return CheckinCode{Mode: m, CourseID: courseID, SessionID: sessionID}, nil
}
