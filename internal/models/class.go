package models

// Class is a cohort of students. Persons and Courses both belong to classes
// through join tables.
type Class struct {
	Code string `gorm:"primaryKey;size:32"`
	Name string `gorm:"size:128"`
}
