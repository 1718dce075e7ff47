package db

import (
	"fmt"

	"github.com/zulandar/rollcall/internal/config"
	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Class{},
		&models.Person{},
		&models.Course{},
		&models.Session{},
		&models.AttendanceRecord{},
		&models.LedgerEntry{},
		&models.LeaveRequest{},
	}
}

// AutoMigrate creates or updates all tables, including the many2many join
// tables declared on Person and Course.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedClasses upserts Class rows from configuration.
func SeedClasses(db *gorm.DB, classes []config.ClassConfig) error {
	for _, cc := range classes {
		class := models.Class{Code: cc.Code, Name: cc.Name}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&class)
		if result.Error != nil {
			return fmt.Errorf("db: seed class %q: %w", cc.Code, result.Error)
		}
	}
	return nil
}

// SeedCourses upserts Course rows from configuration and replaces each
// course's class ownership. Unknown class codes are created on the fly.
func SeedCourses(db *gorm.DB, courses []config.CourseConfig) error {
	for _, cc := range courses {
		course, err := courseFromConfig(cc)
		if err != nil {
			return fmt.Errorf("db: seed course %q: %w", cc.ID, err)
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			result := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"subject", "weekday", "start_time", "end_time", "latitude", "longitude",
					"radius_meters", "late_threshold_minutes", "remind_minutes", "active", "updated_at",
				}),
			}).Omit("Classes").Create(&course)
			if result.Error != nil {
				return result.Error
			}

			classes := make([]models.Class, 0, len(cc.Classes))
			for _, code := range cc.Classes {
				class := models.Class{Code: code}
				if err := tx.Where(models.Class{Code: code}).FirstOrCreate(&class).Error; err != nil {
					return fmt.Errorf("class %q: %w", code, err)
				}
				classes = append(classes, class)
			}
			return tx.Model(&course).Association("Classes").Replace(classes)
		})
		if err != nil {
			return fmt.Errorf("db: seed course %q: %w", cc.ID, err)
		}
	}
	return nil
}

func courseFromConfig(cc config.CourseConfig) (models.Course, error) {
	wd, err := config.ParseWeekday(cc.Weekday)
	if err != nil {
		return models.Course{}, err
	}
	late := config.DefaultLateThresholdMinutes
	if cc.LateThresholdMinutes != nil {
		late = *cc.LateThresholdMinutes
	}
	return models.Course{
		ID:                   cc.ID,
		Subject:              cc.Subject,
		Weekday:              int(wd),
		StartTime:            cc.Start,
		EndTime:              cc.End,
		Latitude:             cc.Latitude,
		Longitude:            cc.Longitude,
		RadiusMeters:         cc.RadiusMeters,
		LateThresholdMinutes: late,
		RemindMinutes:        cc.RemindMinutes,
		Active:               !cc.Inactive,
	}, nil
}

// Seed writes all configured classes and courses.
func Seed(db *gorm.DB, cfg *config.Config) error {
	if err := SeedClasses(db, cfg.Classes); err != nil {
		return err
	}
	return SeedCourses(db, cfg.Courses)
}
