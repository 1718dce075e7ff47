package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
)

type gormPeople struct {
	db *gorm.DB
}

// outcomeColumns maps an attendance status to its Person counter column.
var outcomeColumns = map[models.AttendanceStatus]string{
	models.StatusOnTime: "on_time_count",
	models.StatusLate:   "late_count",
	models.StatusAbsent: "absent_count",
}

const rateExpr = "CASE WHEN on_time_count + late_count + absent_count = 0 THEN 0 " +
	"ELSE (on_time_count + late_count) * 100.0 / (on_time_count + late_count + absent_count) END"

func (s *gormPeople) Get(ctx context.Context, id string) (*models.Person, error) {
	var p models.Person
	err := s.db.WithContext(ctx).Preload("Classes").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "person", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get person %s: %w", id, err)
	}
	return &p, nil
}

func (s *gormPeople) GetByToken(ctx context.Context, token string) (*models.Person, error) {
	var p models.Person
	err := s.db.WithContext(ctx).Preload("Classes").
		Where("messaging_token = ? AND status = ?", token, models.PersonActive).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "person", ID: token}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get person by token: %w", err)
	}
	return &p, nil
}

func (s *gormPeople) Create(ctx context.Context, p *models.Person) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("store: create person %s: %w", p.ID, err)
	}
	return nil
}

func (s *gormPeople) Bind(ctx context.Context, id, token, platform string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A token identifies one person; release it from anyone else first.
		if err := tx.Model(&models.Person{}).
			Where("messaging_token = ? AND id <> ?", token, id).
			Updates(map[string]interface{}{
				"messaging_token": nil,
				"status":          models.PersonUnbound,
			}).Error; err != nil {
			return fmt.Errorf("store: release token: %w", err)
		}

		result := tx.Model(&models.Person{}).Where("id = ?", id).Updates(map[string]interface{}{
			"messaging_token": token,
			"platform":        platform,
			"status":          models.PersonActive,
			"registered_at":   at,
		})
		if result.Error != nil {
			return fmt.Errorf("store: bind person %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return &apperr.NotFoundError{Entity: "person", ID: id}
		}
		return nil
	})
}

func (s *gormPeople) Unbind(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.Person{}).Where("id = ?", id).Updates(map[string]interface{}{
		"messaging_token": nil,
		"status":          models.PersonUnbound,
	})
	if result.Error != nil {
		return fmt.Errorf("store: unbind person %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &apperr.NotFoundError{Entity: "person", ID: id}
	}
	return nil
}

func (s *gormPeople) JoinClass(ctx context.Context, id, classCode string) error {
	p := models.Person{ID: id}
	class := models.Class{Code: classCode}
	if err := s.db.WithContext(ctx).Model(&p).Association("Classes").Append(&class); err != nil {
		return fmt.Errorf("store: person %s join class %s: %w", id, classCode, err)
	}
	return nil
}

func (s *gormPeople) LeaveClass(ctx context.Context, id, classCode string) error {
	p := models.Person{ID: id}
	class := models.Class{Code: classCode}
	if err := s.db.WithContext(ctx).Model(&p).Association("Classes").Delete(&class); err != nil {
		return fmt.Errorf("store: person %s leave class %s: %w", id, classCode, err)
	}
	return nil
}

// ApplyOutcome runs the increment and the rate recomputation in one
// transaction. They are separate statements because MySQL evaluates SET
// assignments left to right against updated values while SQLite and
// Postgres use the old row.
func (s *gormPeople) ApplyOutcome(ctx context.Context, id string, status models.AttendanceStatus) error {
	col, ok := outcomeColumns[status]
	if !ok {
		return fmt.Errorf("store: apply outcome: unknown status %q", status)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Person{}).Where("id = ?", id).
			UpdateColumn(col, gorm.Expr(col+" + ?", 1))
		if result.Error != nil {
			return fmt.Errorf("store: increment %s for %s: %w", col, id, result.Error)
		}
		if result.RowsAffected == 0 {
			return &apperr.NotFoundError{Entity: "person", ID: id}
		}
		if err := tx.Model(&models.Person{}).Where("id = ?", id).
			UpdateColumn("attendance_rate", gorm.Expr(rateExpr)).Error; err != nil {
			return fmt.Errorf("store: recompute rate for %s: %w", id, err)
		}
		return nil
	})
}

func (s *gormPeople) EnrolledInCourse(ctx context.Context, courseID string) ([]models.Person, error) {
	db := s.db.WithContext(ctx)
	members := db.Table("person_classes").
		Select("person_classes.person_id").
		Joins("JOIN course_classes ON course_classes.class_code = person_classes.class_code").
		Where("course_classes.course_id = ?", courseID)

	var people []models.Person
	if err := db.Where("id IN (?)", members).Order("id").Find(&people).Error; err != nil {
		return nil, fmt.Errorf("store: enrolled in course %s: %w", courseID, err)
	}
	return people, nil
}
