package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/crm"
	"github.com/linecrm/linecrm/internal/lineapi"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

const (
	maxWebhookBody = 1 << 20
	// lineContentURL serves media uploaded through LINE.
	lineContentURL = "https://api-data.line.me/v2/bot/message/%s/content"
)

// WebhookHandler receives LINE Messaging API webhooks.
type WebhookHandler struct {
	db     *gorm.DB
	api    *lineapi.Client // Optional; used to enrich profiles.
	secret func() string
}

// NewWebhookHandler constructs a WebhookHandler. secret returns the current channel secret.
func NewWebhookHandler(db *gorm.DB, api *lineapi.Client, secret func() string) *WebhookHandler {
	return &WebhookHandler{db: db, api: api, secret: secret}
}

// Receive verifies the signature and applies each event. Individual event
// failures are logged and do not fail the delivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if errRead != nil || len(body) > maxWebhookBody {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	secret := ""
	if h.secret != nil {
		secret = strings.TrimSpace(h.secret())
	}
	if secret == "" {
		log.Warn("webhook: channel secret not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "channel secret not configured"})
		return
	}
	if !lineapi.ValidateSignature(secret, body, c.GetHeader(lineapi.SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	processed := 0
	events := gjson.GetBytes(body, "events").Array()
	for _, event := range events {
		eventType := event.Get("type").String()
		if errEvent := h.handleEvent(ctx, eventType, event); errEvent != nil {
			log.WithError(errEvent).WithFields(log.Fields{
				"event_type":       eventType,
				"webhook_event_id": event.Get("webhookEventId").String(),
			}).Error("webhook: event failed")
			continue
		}
		processed++
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "received": len(events), "processed": processed})
}

func (h *WebhookHandler) handleEvent(ctx context.Context, eventType string, event gjson.Result) error {
	userID := event.Get("source.userId").String()
	groupID := event.Get("source.groupId").String()

	switch eventType {
	case "message":
		return h.handleMessage(ctx, event, userID, groupID)
	case "follow":
		isFriend := true
		profile := h.userProfile(ctx, userID)
		profile.IsFriend = &isFriend
		_, errUpsert := crm.UpsertUser(ctx, h.db, profile)
		return errUpsert
	case "unfollow":
		isFriend := false
		_, errUpsert := crm.UpsertUser(ctx, h.db, crm.UserProfile{LineUserID: userID, IsFriend: &isFriend})
		return errUpsert
	case "join":
		if groupID == "" {
			return nil
		}
		_, errUpsert := crm.UpsertGroup(ctx, h.db, h.groupProfile(ctx, groupID))
		return errUpsert
	case "leave":
		// History is kept after the bot leaves.
		log.WithField("line_group_id", groupID).Info("webhook: bot left group")
		return nil
	case "memberJoined":
		for _, member := range event.Get("joined.members").Array() {
			memberID := member.Get("userId").String()
			if memberID == "" {
				continue
			}
			if _, errUpsert := crm.UpsertUser(ctx, h.db, h.memberProfile(ctx, groupID, memberID)); errUpsert != nil {
				return errUpsert
			}
			if _, errAdd := crm.AddGroupMember(ctx, h.db, groupID, memberID, ""); errAdd != nil {
				return errAdd
			}
		}
		return nil
	case "memberLeft":
		for _, member := range event.Get("left.members").Array() {
			if _, errRemove := crm.RemoveGroupMember(ctx, h.db, groupID, member.Get("userId").String()); errRemove != nil {
				return errRemove
			}
		}
		return nil
	default:
		log.WithField("event_type", eventType).Debug("webhook: event ignored")
		return nil
	}
}

func (h *WebhookHandler) handleMessage(ctx context.Context, event gjson.Result, userID, groupID string) error {
	msg := event.Get("message")
	msgType := msg.Get("type").String()
	msgID := msg.Get("id").String()

	if userID != "" {
		if _, errFind := crm.FindUserByLineID(ctx, h.db, userID); errors.Is(errFind, crm.ErrNotFound) {
			if _, errUpsert := crm.UpsertUser(ctx, h.db, h.memberProfile(ctx, groupID, userID)); errUpsert != nil {
				return errUpsert
			}
		}
	}
	if groupID != "" {
		if _, errFind := crm.FindGroupByLineID(ctx, h.db, groupID); errors.Is(errFind, crm.ErrNotFound) {
			if _, errUpsert := crm.UpsertGroup(ctx, h.db, h.groupProfile(ctx, groupID)); errUpsert != nil {
				return errUpsert
			}
		}
	}

	input := crm.MessageInput{
		MessageID:   msgID,
		LineUserID:  userID,
		LineGroupID: groupID,
		Type:        msgType,
		Content:     messageContent(msg),
		Original:    []byte(msg.Raw),
	}
	if ms := event.Get("timestamp").Int(); ms > 0 {
		input.SentAt = time.UnixMilli(ms).UTC()
	}
	switch msgType {
	case "image", "video", "audio", "file":
		input.Attachments = []crm.AttachmentInput{{
			Type:     msgType,
			FileURL:  contentURL(msg, msgID),
			FileName: msg.Get("fileName").String(),
			FileSize: msg.Get("fileSize").Int(),
		}}
	}

	_, errRecord := crm.RecordMessage(ctx, h.db, input)
	if errors.Is(errRecord, crm.ErrDuplicateMessage) {
		log.WithField("message_id", msgID).Debug("webhook: redelivered message ignored")
		return nil
	}
	return errRecord
}

func messageContent(msg gjson.Result) string {
	switch msg.Get("type").String() {
	case "text":
		return msg.Get("text").String()
	case "sticker":
		return "[sticker " + msg.Get("packageId").String() + "/" + msg.Get("stickerId").String() + "]"
	case "location":
		parts := []string{}
		for _, field := range []string{"title", "address"} {
			if v := strings.TrimSpace(msg.Get(field).String()); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	case "file":
		return msg.Get("fileName").String()
	default:
		return ""
	}
}

func contentURL(msg gjson.Result, msgID string) string {
	if msg.Get("contentProvider.type").String() == "external" {
		return msg.Get("contentProvider.originalContentUrl").String()
	}
	return fmt.Sprintf(lineContentURL, msgID)
}

func (h *WebhookHandler) userProfile(ctx context.Context, userID string) crm.UserProfile {
	out := crm.UserProfile{LineUserID: userID}
	if h.api == nil || userID == "" {
		return out
	}
	profile, errProfile := h.api.GetProfile(ctx, userID)
	if errProfile != nil {
		logEnrichError(errProfile, "line_user_id", userID)
		return out
	}
	out.DisplayName = profile.DisplayName
	out.PictureURL = profile.PictureURL
	out.StatusMessage = profile.StatusMessage
	return out
}

func (h *WebhookHandler) memberProfile(ctx context.Context, groupID, userID string) crm.UserProfile {
	if groupID == "" {
		return h.userProfile(ctx, userID)
	}
	out := crm.UserProfile{LineUserID: userID}
	if h.api == nil || userID == "" {
		return out
	}
	profile, errProfile := h.api.GetGroupMemberProfile(ctx, groupID, userID)
	if errProfile != nil {
		logEnrichError(errProfile, "line_user_id", userID)
		return out
	}
	out.DisplayName = profile.DisplayName
	out.PictureURL = profile.PictureURL
	return out
}

func (h *WebhookHandler) groupProfile(ctx context.Context, groupID string) crm.GroupProfile {
	out := crm.GroupProfile{LineGroupID: groupID}
	if h.api == nil {
		return out
	}
	summary, errSummary := h.api.GetGroupSummary(ctx, groupID)
	if errSummary != nil {
		logEnrichError(errSummary, "line_group_id", groupID)
	} else {
		out.GroupName = summary.GroupName
		out.PictureURL = summary.PictureURL
	}
	count, errCount := h.api.GetGroupMemberCount(ctx, groupID)
	if errCount != nil {
		logEnrichError(errCount, "line_group_id", groupID)
	} else {
		out.MemberCount = &count
	}
	return out
}

func logEnrichError(err error, field, value string) {
	entry := log.WithError(err).WithField(field, value)
	if errors.Is(err, lineapi.ErrNoAccessToken) || lineapi.IsNotFound(err) {
		entry.Debug("webhook: profile lookup skipped")
		return
	}
	entry.Warn("webhook: profile lookup failed")
}
