package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zulandar/rollcall/internal/models"
)

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"validation", NewValidationError("student_id", "must be %d-%d digits", 6, 10), IsValidation},
		{"not found", &NotFoundError{Entity: "course", ID: "C1"}, IsNotFound},
		{"duplicate", &DuplicateError{SessionID: "s", PersonID: "p", Status: models.StatusLate}, IsDuplicate},
		{"conflict", &ConflictError{CourseID: "C1", Date: "2026-03-02"}, IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.is(wrapped) {
				t.Errorf("classifier did not match wrapped %T", tt.err)
			}
			if tt.is(errors.New("plain")) {
				t.Error("classifier matched a plain error")
			}
		})
	}
}

func TestMessages(t *testing.T) {
	v := NewValidationError("name", "must be 2-10 characters")
	if v.Error() != "name: must be 2-10 characters" {
		t.Errorf("ValidationError = %q", v.Error())
	}
	d := &DuplicateError{SessionID: "s1", PersonID: "123456", Status: models.StatusOnTime}
	if !strings.Contains(d.Error(), "on-time") {
		t.Errorf("DuplicateError = %q, want status", d.Error())
	}
	g := &GeofenceRejection{DistanceMeters: 51.4, RadiusMeters: 50}
	if g.Error() != "51m from classroom exceeds allowed 50m" {
		t.Errorf("GeofenceRejection = %q", g.Error())
	}
	if !strings.Contains((&GeofenceRejection{VenueOnly: true}).Error(), "venue") {
		t.Error("venue-only rejection should mention venue")
	}
	c := &ConflictError{CourseID: "C1", Date: "2026-03-02", Existing: &models.Session{ID: "abc"}}
	if !strings.Contains(c.Error(), "abc") {
		t.Errorf("ConflictError = %q, want existing id", c.Error())
	}
}

func TestDeliveryFailure_Unwrap(t *testing.T) {
	base := errors.New("socket closed")
	err := fmt.Errorf("notify: %w", &DeliveryFailure{Token: "U1", Err: base})
	if !errors.Is(err, base) {
		t.Error("DeliveryFailure should unwrap to the transport error")
	}
	var df *DeliveryFailure
	if !errors.As(err, &df) || df.Token != "U1" {
		t.Errorf("errors.As DeliveryFailure = %+v", df)
	}
}
