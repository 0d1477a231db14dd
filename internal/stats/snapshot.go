package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/linecrm/linecrm/internal/models"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// KeywordCount is one entry of a snapshot's top keywords.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

const snapshotTopKeywords = 10

// SnapshotDay computes the activity of the UTC day containing day and stores
// it in daily_stats, replacing an earlier snapshot of the same day.
func (s *Service) SnapshotDay(ctx context.Context, day time.Time) (models.DailyStat, error) {
	y, m, d := day.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	row := models.DailyStat{
		Date:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Now().UTC(),
	}

	var counts struct {
		TotalMessages int64 `db:"total_messages"`
		ActiveUsers   int64 `db:"active_users"`
	}
	if errMessages := s.db.GetContext(ctx, &counts, s.db.Rebind(`
		SELECT
			COUNT(*) AS total_messages,
			COUNT(DISTINCT CASE WHEN is_from_bot THEN NULL ELSE NULLIF(line_user_id, '') END) AS active_users
		FROM messages
		WHERE created_at >= ? AND created_at < ?`), start, end); errMessages != nil {
		return models.DailyStat{}, fmt.Errorf("stats: snapshot messages: %w", errMessages)
	}
	row.TotalMessages = counts.TotalMessages
	row.ActiveUsers = counts.ActiveUsers

	var people struct {
		TotalUsers int64 `db:"total_users"`
		NewUsers   int64 `db:"new_users"`
	}
	if errUsers := s.db.GetContext(ctx, &people, s.db.Rebind(`
		SELECT
			COUNT(CASE WHEN created_at < ? THEN 1 END) AS total_users,
			COUNT(CASE WHEN created_at >= ? AND created_at < ? THEN 1 END) AS new_users
		FROM line_users`), end, start, end); errUsers != nil {
		return models.DailyStat{}, fmt.Errorf("stats: snapshot users: %w", errUsers)
	}
	row.TotalUsers = people.TotalUsers
	row.NewUsers = people.NewUsers

	if errGroups := s.db.GetContext(ctx, &row.TotalGroups, s.db.Rebind(`
		SELECT COUNT(*) FROM line_groups WHERE created_at < ?`), end); errGroups != nil {
		return models.DailyStat{}, fmt.Errorf("stats: snapshot groups: %w", errGroups)
	}

	byType := map[string]int64{}
	var types []TypeCount
	if errTypes := s.db.SelectContext(ctx, &types, s.db.Rebind(`
		SELECT message_type, COUNT(*) AS count
		FROM messages
		WHERE created_at >= ? AND created_at < ?
		GROUP BY message_type`), start, end); errTypes != nil {
		return models.DailyStat{}, fmt.Errorf("stats: snapshot types: %w", errTypes)
	}
	for _, t := range types {
		byType[t.MessageType] = t.Count
	}

	var keywordDocs []string
	if errKeywords := s.db.SelectContext(ctx, &keywordDocs, s.db.Rebind(`
		SELECT keywords FROM messages
		WHERE created_at >= ? AND created_at < ? AND keywords IS NOT NULL`), start, end); errKeywords != nil {
		return models.DailyStat{}, fmt.Errorf("stats: snapshot keywords: %w", errKeywords)
	}

	byTypeJSON, errType := json.Marshal(byType)
	if errType != nil {
		return models.DailyStat{}, fmt.Errorf("stats: encode types: %w", errType)
	}
	topJSON, errTop := json.Marshal(topKeywords(keywordDocs, snapshotTopKeywords))
	if errTop != nil {
		return models.DailyStat{}, fmt.Errorf("stats: encode keywords: %w", errTop)
	}
	row.MessagesByType = datatypes.JSON(byTypeJSON)
	row.TopKeywords = datatypes.JSON(topJSON)

	errUpsert := s.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_messages", "total_users", "total_groups", "new_users",
			"active_users", "messages_by_type", "top_keywords", "created_at",
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		return models.DailyStat{}, fmt.Errorf("stats: store snapshot: %w", errUpsert)
	}
	return row, nil
}

// ListSnapshots returns stored snapshots, newest first.
func (s *Service) ListSnapshots(ctx context.Context, limit int) ([]models.DailyStat, error) {
	if limit <= 0 || limit > 366 {
		limit = 30
	}
	var rows []models.DailyStat
	if errFind := s.gdb.WithContext(ctx).Order("date DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("stats: list snapshots: %w", errFind)
	}
	return rows, nil
}

// topKeywords counts keywords across JSON array documents.
func topKeywords(docs []string, limit int) []KeywordCount {
	counts := map[string]int64{}
	for _, doc := range docs {
		gjson.Parse(doc).ForEach(func(_, value gjson.Result) bool {
			if kw := value.String(); kw != "" {
				counts[kw]++
			}
			return true
		})
	}
	out := make([]KeywordCount, 0, len(counts))
	for kw, n := range counts {
		out = append(out, KeywordCount{Keyword: kw, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
