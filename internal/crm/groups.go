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

// GroupProfile carries group fields reported by LINE.
type GroupProfile struct {
	LineGroupID string
	GroupName   string
	PictureURL  string
	// MemberCount is left unchanged when nil.
	MemberCount *int64
}

// UpsertGroup creates the group on first contact and refreshes the LINE
// summary fields afterwards.
func UpsertGroup(ctx context.Context, db *gorm.DB, profile GroupProfile) (models.LineGroup, error) {
	lineGroupID := strings.TrimSpace(profile.LineGroupID)
	if lineGroupID == "" {
		return models.LineGroup{}, fmt.Errorf("%w: line group id is required", ErrInvalidInput)
	}

	now := nowUTC()
	row := models.LineGroup{
		LineGroupID: lineGroupID,
		GroupName:   profile.GroupName,
		PictureURL:  profile.PictureURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	updates := map[string]any{"updated_at": now}
	if profile.GroupName != "" {
		updates["group_name"] = profile.GroupName
	}
	if profile.PictureURL != "" {
		updates["picture_url"] = profile.PictureURL
	}
	if profile.MemberCount != nil {
		row.MemberCount = *profile.MemberCount
		updates["member_count"] = *profile.MemberCount
	}

	errUpsert := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "line_group_id"}},
			DoUpdates: clause.Assignments(updates),
		}).
		Create(&row).Error
	if errUpsert != nil {
		return models.LineGroup{}, fmt.Errorf("crm: upsert group: %w", errUpsert)
	}
	return FindGroupByLineID(ctx, db, lineGroupID)
}

// FindGroupByLineID loads a group by LINE group id.
func FindGroupByLineID(ctx context.Context, db *gorm.DB, lineGroupID string) (models.LineGroup, error) {
	var row models.LineGroup
	errFind := db.WithContext(ctx).Where("line_group_id = ?", lineGroupID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.LineGroup{}, ErrNotFound
	}
	if errFind != nil {
		return models.LineGroup{}, fmt.Errorf("crm: find group: %w", errFind)
	}
	return row, nil
}

// AddGroupMember links a user to a group, creating either side when unknown.
// It reports whether a new membership was created.
func AddGroupMember(ctx context.Context, db *gorm.DB, lineGroupID, lineUserID, role string) (bool, error) {
	var added bool
	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errAdd error
		added, errAdd = addGroupMemberTx(tx, lineGroupID, lineUserID, role)
		return errAdd
	})
	return added, errTx
}

// RemoveGroupMember unlinks a user from a group. It reports whether a membership was removed.
func RemoveGroupMember(ctx context.Context, db *gorm.DB, lineGroupID, lineUserID string) (bool, error) {
	var removed bool
	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, errGroup := FindGroupByLineID(ctx, tx, lineGroupID)
		if errGroup != nil {
			if errors.Is(errGroup, ErrNotFound) {
				return nil
			}
			return errGroup
		}
		user, errUser := FindUserByLineID(ctx, tx, lineUserID)
		if errUser != nil {
			if errors.Is(errUser, ErrNotFound) {
				return nil
			}
			return errUser
		}
		res := tx.Where("group_id = ? AND user_id = ?", group.ID, user.ID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return fmt.Errorf("crm: remove member: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&models.LineGroup{}).Where("id = ?", group.ID).Updates(map[string]any{
			"member_count": gorm.Expr("CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END"),
			"updated_at":   nowUTC(),
		}).Error
	})
	return removed, errTx
}

// addGroupMemberTx must run inside a transaction.
func addGroupMemberTx(tx *gorm.DB, lineGroupID, lineUserID, role string) (bool, error) {
	group, errGroup := ensureGroupTx(tx, lineGroupID)
	if errGroup != nil {
		return false, errGroup
	}
	user, errUser := ensureUserTx(tx, lineUserID)
	if errUser != nil {
		return false, errUser
	}
	if strings.TrimSpace(role) == "" {
		role = "member"
	}
	member := models.GroupMember{GroupID: group.ID, UserID: user.ID, Role: role, JoinedAt: nowUTC()}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&member)
	if res.Error != nil {
		return false, fmt.Errorf("crm: add member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	errCount := tx.Model(&models.LineGroup{}).Where("id = ?", group.ID).Updates(map[string]any{
		"member_count": gorm.Expr("member_count + 1"),
		"updated_at":   nowUTC(),
	}).Error
	if errCount != nil {
		return false, fmt.Errorf("crm: add member: member count: %w", errCount)
	}
	return true, nil
}

// ensureUserTx returns the user row, inserting a bare one when missing.
func ensureUserTx(tx *gorm.DB, lineUserID string) (models.LineUser, error) {
	lineUserID = strings.TrimSpace(lineUserID)
	if lineUserID == "" {
		return models.LineUser{}, fmt.Errorf("%w: line user id is required", ErrInvalidInput)
	}
	now := nowUTC()
	row := models.LineUser{LineUserID: lineUserID, CreatedAt: now, UpdatedAt: now}
	if errCreate := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line_user_id"}},
		DoNothing: true,
	}).Create(&row).Error; errCreate != nil {
		return models.LineUser{}, fmt.Errorf("crm: ensure user: %w", errCreate)
	}
	return FindUserByLineID(tx.Statement.Context, tx, lineUserID)
}

// ensureGroupTx returns the group row, inserting a bare one when missing.
func ensureGroupTx(tx *gorm.DB, lineGroupID string) (models.LineGroup, error) {
	lineGroupID = strings.TrimSpace(lineGroupID)
	if lineGroupID == "" {
		return models.LineGroup{}, fmt.Errorf("%w: line group id is required", ErrInvalidInput)
	}
	now := nowUTC()
	row := models.LineGroup{LineGroupID: lineGroupID, CreatedAt: now, UpdatedAt: now}
	if errCreate := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line_group_id"}},
		DoNothing: true,
	}).Create(&row).Error; errCreate != nil {
		return models.LineGroup{}, fmt.Errorf("crm: ensure group: %w", errCreate)
	}
	return FindGroupByLineID(tx.Statement.Context, tx, lineGroupID)
}

// DeleteGroup removes a group with its memberships and tag links.
func DeleteGroup(ctx context.Context, db *gorm.DB, id uint64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.LineGroup{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("crm: delete group: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if errLinks := tx.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; errLinks != nil {
			return fmt.Errorf("crm: delete group: memberships: %w", errLinks)
		}
		if errTags := tx.Where("group_id = ?", id).Delete(&models.GroupTag{}).Error; errTags != nil {
			return fmt.Errorf("crm: delete group: tags: %w", errTags)
		}
		return nil
	})
}
