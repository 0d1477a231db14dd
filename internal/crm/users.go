package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserProfile carries profile fields reported by LINE.
type UserProfile struct {
	LineUserID    string
	DisplayName   string
	PictureURL    string
	StatusMessage string
	// IsFriend is left unchanged when nil.
	IsFriend *bool
}

// UpsertUser creates the user on first contact and refreshes the LINE profile
// fields afterwards. Operator fields are never overwritten.
func UpsertUser(ctx context.Context, db *gorm.DB, profile UserProfile) (models.LineUser, error) {
	lineUserID := strings.TrimSpace(profile.LineUserID)
	if lineUserID == "" {
		return models.LineUser{}, fmt.Errorf("%w: line user id is required", ErrInvalidInput)
	}

	now := nowUTC()
	row := models.LineUser{
		LineUserID:    lineUserID,
		DisplayName:   profile.DisplayName,
		PictureURL:    profile.PictureURL,
		StatusMessage: profile.StatusMessage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if profile.IsFriend != nil {
		row.IsFriend = *profile.IsFriend
	}

	updates := map[string]any{"updated_at": now}
	if profile.DisplayName != "" {
		updates["display_name"] = profile.DisplayName
	}
	if profile.PictureURL != "" {
		updates["picture_url"] = profile.PictureURL
	}
	if profile.StatusMessage != "" {
		updates["status_message"] = profile.StatusMessage
	}
	if profile.IsFriend != nil {
		updates["is_friend"] = *profile.IsFriend
	}

	errUpsert := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "line_user_id"}},
			DoUpdates: clause.Assignments(updates),
		}).
		Create(&row).Error
	if errUpsert != nil {
		return models.LineUser{}, fmt.Errorf("crm: upsert user: %w", errUpsert)
	}
	return FindUserByLineID(ctx, db, lineUserID)
}

// FindUserByLineID loads a user by LINE user id.
func FindUserByLineID(ctx context.Context, db *gorm.DB, lineUserID string) (models.LineUser, error) {
	var row models.LineUser
	errFind := db.WithContext(ctx).Where("line_user_id = ?", lineUserID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.LineUser{}, ErrNotFound
	}
	if errFind != nil {
		return models.LineUser{}, fmt.Errorf("crm: find user: %w", errFind)
	}
	return row, nil
}

// DeleteUser removes a user with its tag links and group memberships.
// Member counts of the groups the user belonged to are decremented.
func DeleteUser(ctx context.Context, db *gorm.DB, id uint64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.LineUser
		if errFind := tx.Select("id").First(&row, "id = ?", id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("crm: delete user: %w", errFind)
		}
		memberships := tx.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", id)
		if errCount := tx.Model(&models.LineGroup{}).
			Where("id IN (?)", memberships).
			Updates(map[string]any{
				"member_count": gorm.Expr("CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END"),
				"updated_at":   nowUTC(),
			}).Error; errCount != nil {
			return fmt.Errorf("crm: delete user: member counts: %w", errCount)
		}
		if errLinks := tx.Where("user_id = ?", id).Delete(&models.GroupMember{}).Error; errLinks != nil {
			return fmt.Errorf("crm: delete user: memberships: %w", errLinks)
		}
		if errTags := tx.Where("user_id = ?", id).Delete(&models.UserTag{}).Error; errTags != nil {
			return fmt.Errorf("crm: delete user: tags: %w", errTags)
		}
		if errDelete := tx.Delete(&models.LineUser{}, "id = ?", id).Error; errDelete != nil {
			return fmt.Errorf("crm: delete user: %w", errDelete)
		}
		return nil
	})
}
