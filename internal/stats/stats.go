// Package stats is the read model behind the dashboard: aggregate SQL over
// users, groups and messages scanned with sqlx.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	dbutil "github.com/linecrm/linecrm/internal/db"
	"gorm.io/gorm"
)

// Service runs statistics queries.
type Service struct {
	gdb *gorm.DB // Used for dialect helpers and snapshot writes.
	db  *sqlx.DB // Aggregate reads.
}

// New wraps the pool behind conn.
func New(conn *gorm.DB) (*Service, error) {
	if conn == nil {
		return nil, errors.New("stats: nil db")
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("stats: %w", errDB)
	}
	return &Service{gdb: conn, db: sqlx.NewDb(sqlDB, dbutil.DriverName(conn))}, nil
}

// UserCounts summarizes line_users.
type UserCounts struct {
	Total      int64 `db:"total" json:"total"`
	NewToday   int64 `db:"new_today" json:"new_today"`
	ActiveWeek int64 `db:"active_week" json:"active_week"`
}

// GroupCounts summarizes line_groups.
type GroupCounts struct {
	Total      int64 `db:"total" json:"total"`
	NewToday   int64 `db:"new_today" json:"new_today"`
	ActiveWeek int64 `db:"active_week" json:"active_week"`
}

// MessageCounts summarizes messages.
type MessageCounts struct {
	Total int64 `db:"total" json:"total"`
	Today int64 `db:"today" json:"today"`
	Week  int64 `db:"week" json:"week"`
}

// Overview is the dashboard headline.
type Overview struct {
	Users       UserCounts    `json:"users"`
	Groups      GroupCounts   `json:"groups"`
	Messages    MessageCounts `json:"messages"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Window holds the boundaries used by the "today" and "last 7 days" counters.
type Window struct {
	StartOfDay time.Time
	WeekAgo    time.Time
}

// WindowAt computes the counter boundaries for now. Calendar days are UTC
// days, matching the day keys used by DailySummary.
func WindowAt(now time.Time) Window {
	now = now.UTC()
	y, m, d := now.Date()
	return Window{
		StartOfDay: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		WeekAgo:    now.Add(-7 * 24 * time.Hour).UTC(),
	}
}

// Overview returns totals, items created today and items active in the last 7 days.
func (s *Service) Overview(ctx context.Context, now time.Time) (Overview, error) {
	w := WindowAt(now)
	out := Overview{GeneratedAt: now.UTC()}

	if errUsers := s.db.GetContext(ctx, &out.Users, s.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN created_at >= ? THEN 1 END) AS new_today,
			COUNT(CASE WHEN last_message_at >= ? THEN 1 END) AS active_week
		FROM line_users`), w.StartOfDay, w.WeekAgo); errUsers != nil {
		return Overview{}, fmt.Errorf("stats: users: %w", errUsers)
	}
	if errGroups := s.db.GetContext(ctx, &out.Groups, s.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN created_at >= ? THEN 1 END) AS new_today,
			COUNT(CASE WHEN last_message_at >= ? THEN 1 END) AS active_week
		FROM line_groups`), w.StartOfDay, w.WeekAgo); errGroups != nil {
		return Overview{}, fmt.Errorf("stats: groups: %w", errGroups)
	}
	if errMessages := s.db.GetContext(ctx, &out.Messages, s.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN created_at >= ? THEN 1 END) AS today,
			COUNT(CASE WHEN created_at >= ? THEN 1 END) AS week
		FROM messages`), w.StartOfDay, w.WeekAgo); errMessages != nil {
		return Overview{}, fmt.Errorf("stats: messages: %w", errMessages)
	}
	return out, nil
}

// DayRow is one day of message activity.
type DayRow struct {
	Day            string `db:"day" json:"date"`
	TotalMessages  int64  `db:"total_messages" json:"total_messages"`
	UniqueUsers    int64  `db:"unique_users" json:"unique_users"`
	UniqueGroups   int64  `db:"unique_groups" json:"unique_groups"`
	TextMessages   int64  `db:"text_messages" json:"text_messages"`
	ImageMessages  int64  `db:"image_messages" json:"image_messages"`
	StickerMessage int64  `db:"sticker_messages" json:"sticker_messages"`
	BotMessages    int64  `db:"bot_messages" json:"bot_messages"`
}

// DailySummary returns per-day activity for the last days days, newest first.
// Days without messages are omitted.
func (s *Service) DailySummary(ctx context.Context, now time.Time, days int) ([]DayRow, error) {
	if days <= 0 {
		days = 30
	}
	w := WindowAt(now)
	since := w.StartOfDay.AddDate(0, 0, -(days - 1))
	dayExpr := dbutil.DateKeyExpr(s.gdb, "created_at")

	query := s.db.Rebind(fmt.Sprintf(`
		SELECT
			%s AS day,
			COUNT(*) AS total_messages,
			COUNT(DISTINCT NULLIF(line_user_id, '')) AS unique_users,
			COUNT(DISTINCT NULLIF(line_group_id, '')) AS unique_groups,
			SUM(CASE WHEN message_type = 'text' THEN 1 ELSE 0 END) AS text_messages,
			SUM(CASE WHEN message_type = 'image' THEN 1 ELSE 0 END) AS image_messages,
			SUM(CASE WHEN message_type = 'sticker' THEN 1 ELSE 0 END) AS sticker_messages,
			SUM(CASE WHEN is_from_bot THEN 1 ELSE 0 END) AS bot_messages
		FROM messages
		WHERE created_at >= ?
		GROUP BY %s
		ORDER BY day DESC`, dayExpr, dayExpr))

	rows := []DayRow{}
	if errSelect := s.db.SelectContext(ctx, &rows, query, since); errSelect != nil {
		return nil, fmt.Errorf("stats: daily summary: %w", errSelect)
	}
	return rows, nil
}

// TypeCount is a message count for one message type.
type TypeCount struct {
	MessageType string `db:"message_type" json:"message_type"`
	Count       int64  `db:"count" json:"count"`
}

// MessagesByType counts messages per type since the given time.
func (s *Service) MessagesByType(ctx context.Context, since time.Time) ([]TypeCount, error) {
	rows := []TypeCount{}
	errSelect := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT message_type, COUNT(*) AS count
		FROM messages
		WHERE created_at >= ?
		GROUP BY message_type
		ORDER BY count DESC, message_type ASC`), since.UTC())
	if errSelect != nil {
		return nil, fmt.Errorf("stats: messages by type: %w", errSelect)
	}
	return rows, nil
}

// ActivityRow is one row of the user_statistics or group_statistics view.
type ActivityRow struct {
	ID            uint64 `db:"id" json:"id"`
	LineID        string `db:"line_id" json:"line_id"`
	Name          string `db:"name" json:"name"`
	CustomName    string `db:"custom_name" json:"custom_name"`
	MessageCount  int64  `db:"message_count" json:"message_count"`
	TotalMessages int64  `db:"total_messages" json:"total_messages"`
	TodayMessages int64  `db:"today_messages" json:"today_messages"`
	WeekMessages  int64  `db:"week_messages" json:"week_messages"`
	MonthMessages int64  `db:"month_messages" json:"month_messages"`
}

// TopUsers returns the most active users of the last week.
func (s *Service) TopUsers(ctx context.Context, limit int) ([]ActivityRow, error) {
	return s.top(ctx, `
		SELECT id, line_user_id AS line_id, display_name AS name, custom_name, message_count,
			total_messages, today_messages, week_messages, month_messages
		FROM user_statistics
		ORDER BY week_messages DESC, total_messages DESC, id ASC
		LIMIT ?`, limit)
}

// TopGroups returns the most active groups of the last week.
func (s *Service) TopGroups(ctx context.Context, limit int) ([]ActivityRow, error) {
	return s.top(ctx, `
		SELECT id, line_group_id AS line_id, group_name AS name, custom_name, message_count,
			total_messages, today_messages, week_messages, month_messages
		FROM group_statistics
		ORDER BY week_messages DESC, total_messages DESC, id ASC
		LIMIT ?`, limit)
}

func (s *Service) top(ctx context.Context, query string, limit int) ([]ActivityRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows := []ActivityRow{}
	if errSelect := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), limit); errSelect != nil {
		return nil, fmt.Errorf("stats: top: %w", errSelect)
	}
	return rows, nil
}
