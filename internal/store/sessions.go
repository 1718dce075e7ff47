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

// Session timestamps are stored in UTC so that SQLite's text timestamps
// compare correctly.
type gormSessions struct {
	db *gorm.DB
}

func (s *gormSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *gormSessions) FindActive(ctx context.Context, courseID, date string) (*models.Session, error) {
	return findActive(s.db.WithContext(ctx), courseID, date)
}

func findActive(db *gorm.DB, courseID, date string) (*models.Session, error) {
	var sess models.Session
	err := db.Where("course_id = ? AND date = ? AND state <> ?", courseID, date, models.SessionClosed).
		Order("opened_at DESC").First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active session %s/%s: %w", courseID, date, err)
	}
	return &sess, nil
}

func (s *gormSessions) CreateExclusive(ctx context.Context, sess *models.Session) error {
	var conflict *apperr.ConflictError

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findActive(tx, sess.CourseID, sess.Date)
		if err != nil {
			return err
		}
		if existing != nil {
			conflict = &apperr.ConflictError{CourseID: sess.CourseID, Date: sess.Date, Existing: existing}
			return conflict
		}

		key := models.ActiveKeyFor(sess.CourseID, sess.Date)
		sess.ActiveKey = &key
		sess.State = models.SessionOpen
		sess.StartAt = sess.StartAt.UTC()
		sess.EndAt = sess.EndAt.UTC()
		sess.OpenedAt = sess.OpenedAt.UTC()
		if err := tx.Create(sess).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				conflict = &apperr.ConflictError{CourseID: sess.CourseID, Date: sess.Date}
				return conflict
			}
			return fmt.Errorf("store: create session: %w", err)
		}
		return nil
	})
	if conflict != nil {
		// Lost an insert race: report the winner.
		if conflict.Existing == nil {
			existing, err := s.FindActive(ctx, sess.CourseID, sess.Date)
			if err != nil {
				return fmt.Errorf("store: create session: load conflicting session: %w", err)
			}
			conflict.Existing = existing
		}
		return conflict
	}
	return err
}

func (s *gormSessions) Transition(ctx context.Context, id string, to models.SessionState, at time.Time, from ...models.SessionState) (bool, error) {
	updates := map[string]interface{}{"state": to}
	switch to {
	case models.SessionClosing:
		updates["closing_at"] = at.UTC()
	case models.SessionClosed:
		updates["closed_at"] = at.UTC()
		updates["active_key"] = nil
	}
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("store: transition session %s to %s: %w", id, to, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormSessions) ListOpenEndedBefore(ctx context.Context, t time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("state = ? AND end_at <= ?", models.SessionOpen, t.UTC()).
		Order("end_at, id").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("store: list due sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormSessions) ListClosingSince(ctx context.Context, before time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("state = ? AND closing_at <= ?", models.SessionClosing, before.UTC()).
		Order("closing_at, id").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("store: list stuck sessions: %w", err)
	}
	return sessions, nil
}
