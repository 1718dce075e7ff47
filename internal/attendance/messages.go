package attendance

import (
	"fmt"

	"github.com/zulandar/rollcall/internal/models"
)

// CheckInMessage is the notification sent after a successful check-in.
func CheckInMessage(course *models.Course, status models.AttendanceStatus, minutesLate int) string {
	if status == models.StatusLate {
		return fmt.Sprintf("Checked in to %s: late by %d min.", course.Subject, minutesLate)
	}
	return fmt.Sprintf("Checked in to %s: on time.", course.Subject)
}

// AbsenceMessage is the notification sent when the absence sweep records
// an unexcused absence.
func AbsenceMessage(course *models.Course, date string) string {
	return fmt.Sprintf("You were marked absent from %s on %s.", course.Subject, date)
}

// StatusLabel renders a status for chat replies.
func StatusLabel(status models.AttendanceStatus) string {
	switch status {
	case models.StatusOnTime:
		return "on time"
	case models.StatusLate:
		return "late"
	case models.StatusAbsent:
		return "absent"
	}
	return string(status)
}
