package models

import "time"

// PersonStatus is the lifecycle state of a Person's messaging link.
type PersonStatus string

const (
	PersonActive  PersonStatus = "active"
	PersonUnbound PersonStatus = "unbound"
)

// Valid reports whether s is a known person status.
func (s PersonStatus) Valid() bool {
	switch s {
	case PersonActive, PersonUnbound:
		return true
	}
	return false
}

// Person is a student, keyed by the externally issued student number.
// MessagingToken is the chat platform user ID and is unset until the first
// registration or after an unbind.
type Person struct {
	ID             string       `gorm:"primaryKey;size:10"`
	Name           string       `gorm:"size:64;not null"`
	MessagingToken *string      `gorm:"size:128;uniqueIndex"`
	Platform       string       `gorm:"size:16"`
	Status         PersonStatus `gorm:"size:16;default:active;index"`
	RegisteredAt   *time.Time
	OnTimeCount    int     `gorm:"not null;default:0"`
	LateCount      int     `gorm:"not null;default:0"`
	AbsentCount    int     `gorm:"not null;default:0"`
	AttendanceRate float64 `gorm:"not null;default:0"` // percent
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Classes []Class `gorm:"many2many:person_classes"`
}

// TableName pins the table name instead of relying on pluralization.
func (Person) TableName() string { return "persons" }

// Token returns the linked messaging token, or "" when unlinked.
func (p *Person) Token() string {
	if p.MessagingToken == nil {
		return ""
	}
	return *p.MessagingToken
}

// Linked reports whether the person has an active messaging link.
func (p *Person) Linked() bool {
	return p.Status == PersonActive && p.Token() != ""
}

// ClassCodes returns the codes of the loaded Classes association.
func (p *Person) ClassCodes() []string {
	codes := make([]string, 0, len(p.Classes))
	for _, c := range p.Classes {
		codes = append(codes, c.Code)
	}
	return codes
}
