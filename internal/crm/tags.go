package crm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTagColor is used for tags created without a color.
const DefaultTagColor = "#3B82F6"

var tagColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// TagInput describes a tag to create.
type TagInput struct {
	Name        string
	Color       string
	Description string
}

// EnsureTag returns the tag with the given name, creating it when missing.
// created reports whether a new row was inserted.
func EnsureTag(ctx context.Context, db *gorm.DB, in TagInput) (tag models.Tag, created bool, err error) {
	name := strings.TrimSpace(in.Name)
	if errName := validateTagName(name); errName != nil {
		return models.Tag{}, false, errName
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = DefaultTagColor
	}
	if !tagColorPattern.MatchString(color) {
		return models.Tag{}, false, fmt.Errorf("%w: tag color must look like #RRGGBB", ErrInvalidInput)
	}

	row := models.Tag{Name: name, Color: color, Description: strings.TrimSpace(in.Description), CreatedAt: nowUTC()}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return models.Tag{}, false, fmt.Errorf("crm: ensure tag: %w", res.Error)
	}
	if errFind := db.WithContext(ctx).Where("name = ?", name).First(&tag).Error; errFind != nil {
		return models.Tag{}, false, fmt.Errorf("crm: ensure tag: %w", errFind)
	}
	return tag, res.RowsAffected > 0, nil
}

// ValidateTagNames checks names the way SetUserTags and SetGroupTags would,
// without touching the database. Blank names are skipped.
func ValidateTagNames(names []string) error {
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if errName := validateTagName(name); errName != nil {
			return errName
		}
	}
	return nil
}

func validateTagName(name string) error {
	if name == "" || len([]rune(name)) > 100 {
		return fmt.Errorf("%w: tag name must be 1-100 characters", ErrInvalidInput)
	}
	return nil
}

// ListTags returns all tags ordered by usage then name.
func ListTags(ctx context.Context, db *gorm.DB) ([]models.Tag, error) {
	var rows []models.Tag
	if errFind := db.WithContext(ctx).Order("usage_count DESC").Order("name ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("crm: list tags: %w", errFind)
	}
	return rows, nil
}

// DeleteTag removes a tag and every link to it.
func DeleteTag(ctx context.Context, db *gorm.DB, id uint64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUsers := tx.Where("tag_id = ?", id).Delete(&models.UserTag{}).Error; errUsers != nil {
			return fmt.Errorf("crm: delete tag: user links: %w", errUsers)
		}
		if errGroups := tx.Where("tag_id = ?", id).Delete(&models.GroupTag{}).Error; errGroups != nil {
			return fmt.Errorf("crm: delete tag: group links: %w", errGroups)
		}
		res := tx.Delete(&models.Tag{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("crm: delete tag: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetUserTags replaces the tag set of a user by tag names. Unknown names are created.
func SetUserTags(ctx context.Context, db *gorm.DB, userID uint64, names []string) ([]models.Tag, error) {
	var tags []models.Tag
	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Select("id").First(&models.LineUser{}, "id = ?", userID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("crm: set user tags: %w", errFind)
		}
		var errTags error
		tags, errTags = ensureTagsTx(ctx, tx, names)
		if errTags != nil {
			return errTags
		}
		ids := tagIDs(tags)

		stale := tx.Where("user_id = ?", userID)
		if len(ids) > 0 {
			stale = stale.Where("tag_id NOT IN ?", ids)
		}
		if errDelete := stale.Delete(&models.UserTag{}).Error; errDelete != nil {
			return fmt.Errorf("crm: set user tags: %w", errDelete)
		}
		for _, id := range ids {
			link := models.UserTag{UserID: userID, TagID: id, CreatedAt: nowUTC()}
			if errLink := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "tag_id"}},
				DoNothing: true,
			}).Create(&link).Error; errLink != nil {
				return fmt.Errorf("crm: set user tags: %w", errLink)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return tags, nil
}

// SetGroupTags replaces the tag set of a group by tag names. Unknown names are created.
func SetGroupTags(ctx context.Context, db *gorm.DB, groupID uint64, names []string) ([]models.Tag, error) {
	var tags []models.Tag
	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Select("id").First(&models.LineGroup{}, "id = ?", groupID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("crm: set group tags: %w", errFind)
		}
		var errTags error
		tags, errTags = ensureTagsTx(ctx, tx, names)
		if errTags != nil {
			return errTags
		}
		ids := tagIDs(tags)

		stale := tx.Where("group_id = ?", groupID)
		if len(ids) > 0 {
			stale = stale.Where("tag_id NOT IN ?", ids)
		}
		if errDelete := stale.Delete(&models.GroupTag{}).Error; errDelete != nil {
			return fmt.Errorf("crm: set group tags: %w", errDelete)
		}
		for _, id := range ids {
			link := models.GroupTag{GroupID: groupID, TagID: id, CreatedAt: nowUTC()}
			if errLink := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "group_id"}, {Name: "tag_id"}},
				DoNothing: true,
			}).Create(&link).Error; errLink != nil {
				return fmt.Errorf("crm: set group tags: %w", errLink)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return tags, nil
}

// TagsForUsers loads the tags of several users keyed by user id.
func TagsForUsers(ctx context.Context, db *gorm.DB, userIDs []uint64) (map[uint64][]models.Tag, error) {
	return tagsFor(ctx, db, "user_tags", "user_id", userIDs)
}

// TagsForGroups loads the tags of several groups keyed by group id.
func TagsForGroups(ctx context.Context, db *gorm.DB, groupIDs []uint64) (map[uint64][]models.Tag, error) {
	return tagsFor(ctx, db, "group_tags", "group_id", groupIDs)
}

// OwnerIDsWithTag returns a subquery selecting owners linked to the named tag.
func OwnerIDsWithTag(db *gorm.DB, linkTable, ownerColumn, tagName string) *gorm.DB {
	return db.Table(linkTable+" AS l").
		Select("l."+ownerColumn).
		Joins("JOIN tags t ON t.id = l.tag_id").
		Where("t.name = ?", tagName)
}

type ownerTag struct {
	OwnerID uint64
	models.Tag
}

func tagsFor(ctx context.Context, db *gorm.DB, linkTable, ownerColumn string, ownerIDs []uint64) (map[uint64][]models.Tag, error) {
	out := make(map[uint64][]models.Tag, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	var rows []ownerTag
	errFind := db.WithContext(ctx).
		Table(linkTable+" AS l").
		Select("l."+ownerColumn+" AS owner_id, t.*").
		Joins("JOIN tags t ON t.id = l.tag_id").
		Where("l."+ownerColumn+" IN ?", ownerIDs).
		Order("t.name ASC").
		Scan(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("crm: load tags: %w", errFind)
	}
	for _, row := range rows {
		out[row.OwnerID] = append(out[row.OwnerID], row.Tag)
	}
	return out, nil
}

func ensureTagsTx(ctx context.Context, tx *gorm.DB, names []string) ([]models.Tag, error) {
	seen := make(map[string]struct{}, len(names))
	tags := make([]models.Tag, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tag, _, errTag := EnsureTag(ctx, tx, TagInput{Name: name})
		if errTag != nil {
			return nil, errTag
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func tagIDs(tags []models.Tag) []uint64 {
	ids := make([]uint64, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids
}
