package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttachmentInput describes media carried by a recorded message.
type AttachmentInput struct {
	Type     string
	FileURL  string
	FileName string
	FileSize int64
	MimeType string
}

// MessageInput is one message to record.
type MessageInput struct {
	// MessageID defaults to a random UUID when empty.
	MessageID   string
	LineUserID  string
	LineGroupID string
	Type        string
	Content     string
	Original    json.RawMessage
	IsFromBot   bool
	Sentiment   *float64
	Keywords    []string
	// SentAt defaults to now.
	SentAt      time.Time
	Attachments []AttachmentInput
}

// RecordMessage stores a message and, in the same transaction, increments the
// sender's and the group's message counters and advances their last message
// time. Unknown senders and groups are created. A message id that was already
// recorded returns ErrDuplicateMessage and leaves every counter unchanged.
func RecordMessage(ctx context.Context, db *gorm.DB, in MessageInput) (models.Message, error) {
	msgType := strings.TrimSpace(in.Type)
	if msgType == "" {
		return models.Message{}, fmt.Errorf("%w: message type is required", ErrInvalidInput)
	}
	lineUserID := strings.TrimSpace(in.LineUserID)
	lineGroupID := strings.TrimSpace(in.LineGroupID)
	if lineUserID == "" && lineGroupID == "" {
		return models.Message{}, fmt.Errorf("%w: line user id or line group id is required", ErrInvalidInput)
	}
	if in.Sentiment != nil && (*in.Sentiment < -1 || *in.Sentiment > 1) {
		return models.Message{}, fmt.Errorf("%w: sentiment score must be between -1 and 1", ErrInvalidInput)
	}

	messageID := strings.TrimSpace(in.MessageID)
	if messageID == "" {
		messageID = uuid.NewString()
	}
	sentAt := in.SentAt.UTC()
	if in.SentAt.IsZero() {
		sentAt = nowUTC()
	}
	keywords := in.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	keywordsJSON, errKeywords := json.Marshal(keywords)
	if errKeywords != nil {
		return models.Message{}, fmt.Errorf("crm: encode keywords: %w", errKeywords)
	}

	row := models.Message{
		MessageID:      messageID,
		LineUserID:     lineUserID,
		LineGroupID:    lineGroupID,
		MessageType:    msgType,
		Content:        in.Content,
		IsFromBot:      in.IsFromBot,
		SentimentScore: in.Sentiment,
		Keywords:       datatypes.JSON(keywordsJSON),
		CreatedAt:      sentAt,
		UpdatedAt:      sentAt,
	}
	if len(in.Original) > 0 {
		row.OriginalContent = datatypes.JSON(in.Original)
	}

	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("crm: insert message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateMessage
		}

		for _, a := range in.Attachments {
			attachment := models.MessageAttachment{
				MessageID:      row.ID,
				AttachmentType: a.Type,
				FileURL:        a.FileURL,
				FileName:       a.FileName,
				FileSize:       a.FileSize,
				MimeType:       a.MimeType,
				CreatedAt:      sentAt,
			}
			if errAttach := tx.Create(&attachment).Error; errAttach != nil {
				return fmt.Errorf("crm: insert attachment: %w", errAttach)
			}
			row.Attachments = append(row.Attachments, attachment)
		}

		if lineUserID != "" {
			if _, errUser := ensureUserTx(tx, lineUserID); errUser != nil {
				return errUser
			}
			if errCount := bumpCounters(tx, &models.LineUser{}, "line_user_id", lineUserID, sentAt); errCount != nil {
				return fmt.Errorf("crm: user counters: %w", errCount)
			}
		}
		if lineGroupID != "" {
			if _, errGroup := ensureGroupTx(tx, lineGroupID); errGroup != nil {
				return errGroup
			}
			if errCount := bumpCounters(tx, &models.LineGroup{}, "line_group_id", lineGroupID, sentAt); errCount != nil {
				return fmt.Errorf("crm: group counters: %w", errCount)
			}
			if lineUserID != "" && !in.IsFromBot {
				if _, errMember := addGroupMemberTx(tx, lineGroupID, lineUserID, ""); errMember != nil {
					return errMember
				}
			}
		}
		return nil
	})
	if errTx != nil {
		return models.Message{}, errTx
	}
	return row, nil
}

// bumpCounters increments message_count and sets last_message_at to the
// timestamp of the message just recorded.
func bumpCounters(tx *gorm.DB, model any, column, value string, at time.Time) error {
	return tx.Model(model).Where(column+" = ?", value).Updates(map[string]any{
		"message_count":   gorm.Expr("message_count + 1"),
		"last_message_at": at,
		"updated_at":      nowUTC(),
	}).Error
}

// DeleteMessage removes a message and its attachments, decrementing the
// counters that RecordMessage incremented.
func DeleteMessage(ctx context.Context, db *gorm.DB, id uint64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Message
		if errFind := tx.First(&row, "id = ?", id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("crm: delete message: %w", errFind)
		}
		if errAttach := tx.Where("message_id = ?", row.ID).Delete(&models.MessageAttachment{}).Error; errAttach != nil {
			return fmt.Errorf("crm: delete attachments: %w", errAttach)
		}
		if errDelete := tx.Delete(&models.Message{}, "id = ?", row.ID).Error; errDelete != nil {
			return fmt.Errorf("crm: delete message: %w", errDelete)
		}
		decrement := map[string]any{
			"message_count": gorm.Expr("CASE WHEN message_count > 0 THEN message_count - 1 ELSE 0 END"),
			"updated_at":    nowUTC(),
		}
		if row.LineUserID != "" {
			if errCount := tx.Model(&models.LineUser{}).Where("line_user_id = ?", row.LineUserID).Updates(decrement).Error; errCount != nil {
				return fmt.Errorf("crm: user counters: %w", errCount)
			}
		}
		if row.LineGroupID != "" {
			if errCount := tx.Model(&models.LineGroup{}).Where("line_group_id = ?", row.LineGroupID).Updates(decrement).Error; errCount != nil {
				return fmt.Errorf("crm: group counters: %w", errCount)
			}
		}
		return nil
	})
}

// AttachmentsFor loads attachments grouped by message id.
func AttachmentsFor(ctx context.Context, db *gorm.DB, messageIDs []uint64) (map[uint64][]models.MessageAttachment, error) {
	out := make(map[uint64][]models.MessageAttachment, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var rows []models.MessageAttachment
	if errFind := db.WithContext(ctx).Where("message_id IN ?", messageIDs).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("crm: load attachments: %w", errFind)
	}
	for _, row := range rows {
		out[row.MessageID] = append(out[row.MessageID], row)
	}
	return out, nil
}
