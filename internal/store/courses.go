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

type gormClasses struct {
	db *gorm.DB
}

func (s *gormClasses) List(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	if err := s.db.WithContext(ctx).Order("code").Find(&classes).Error; err != nil {
		return nil, fmt.Errorf("store: list classes: %w", err)
	}
	return classes, nil
}

func (s *gormClasses) Get(ctx context.Context, code string) (*models.Class, error) {
	var c models.Class
	err := s.db.WithContext(ctx).First(&c, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "class", ID: code}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get class %s: %w", code, err)
	}
	return &c, nil
}

func (s *gormClasses) Ensure(ctx context.Context, code string) (*models.Class, error) {
	c := models.Class{Code: code, Name: code}
	if err := s.db.WithContext(ctx).Where(models.Class{Code: code}).FirstOrCreate(&c).Error; err != nil {
		return nil, fmt.Errorf("store: ensure class %s: %w", code, err)
	}
	return &c, nil
}

type gormCourses struct {
	db *gorm.DB
}

func (s *gormCourses) Get(ctx context.Context, id string) (*models.Course, error) {
	var c models.Course
	err := s.db.WithContext(ctx).Preload("Classes").First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "course", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get course %s: %w", id, err)
	}
	return &c, nil
}

func (s *gormCourses) List(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := s.db.WithContext(ctx).Preload("Classes").Order("weekday, start_time, id").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("store: list courses: %w", err)
	}
	return courses, nil
}

func (s *gormCourses) ActiveOn(ctx context.Context, weekday time.Weekday) ([]models.Course, error) {
	var courses []models.Course
	err := s.db.WithContext(ctx).Preload("Classes").
		Where("active = ? AND weekday = ?", true, int(weekday)).
		Order("start_time, id").Find(&courses).Error
	if err != nil {
		return nil, fmt.Errorf("store: courses on %s: %w", weekday, err)
	}
	return courses, nil
}

func (s *gormCourses) ForClasses(ctx context.Context, classCodes []string) ([]models.Course, error) {
	if len(classCodes) == 0 {
		return nil, nil
	}
	db := s.db.WithContext(ctx)
	owned := db.Table("course_classes").Select("course_id").Where("class_code IN ?", classCodes)

	var courses []models.Course
	if err := db.Where("id IN (?)", owned).Order("weekday, start_time, id").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("store: courses for classes: %w", err)
	}
	return courses, nil
}
