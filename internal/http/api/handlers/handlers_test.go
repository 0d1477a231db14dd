package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/crm"
	"github.com/linecrm/linecrm/internal/db"
	"github.com/linecrm/linecrm/internal/models"
	"github.com/linecrm/linecrm/internal/stats"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "crm.db"), db.PoolOptions{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := db.Bootstrap(context.Background(), conn); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// newTestRouter registers the CRUD handlers without authentication.
func newTestRouter(t *testing.T, conn *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(DevelopmentMode(true))

	healthHandler := NewHealthHandler(conn)
	router.GET("/", healthHandler.Root)
	router.GET("/api/health", healthHandler.Health)

	settingsHandler := NewSettingsHandler(conn)
	router.GET("/api/system-settings", settingsHandler.List)
	router.GET("/api/system-settings/:key", settingsHandler.Get)
	router.PUT("/api/system-settings/:key", settingsHandler.Update)

	userHandler := NewUserHandler(conn)
	router.GET("/api/line-users", userHandler.List)
	router.GET("/api/line-users/:id", userHandler.Get)
	router.PUT("/api/line-users/:id", userHandler.Update)
	router.DELETE("/api/line-users/:id", userHandler.Delete)

	groupHandler := NewGroupHandler(conn)
	router.GET("/api/line-groups", groupHandler.List)
	router.GET("/api/line-groups/:id", groupHandler.Get)
	router.GET("/api/line-groups/:id/members", groupHandler.Members)
	router.PUT("/api/line-groups/:id", groupHandler.Update)
	router.DELETE("/api/line-groups/:id", groupHandler.Delete)

	messageHandler := NewMessageHandler(conn)
	router.GET("/api/messages", messageHandler.List)
	router.POST("/api/messages", messageHandler.Create)
	router.GET("/api/messages/:id", messageHandler.Get)
	router.DELETE("/api/messages/:id", messageHandler.Delete)

	tagHandler := NewTagHandler(conn)
	router.GET("/api/tags", tagHandler.List)
	router.POST("/api/tags", tagHandler.Create)
	router.DELETE("/api/tags/:id", tagHandler.Delete)

	svc, err := stats.New(conn)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	statsHandler := NewStatisticsHandler(svc)
	router.GET("/api/statistics", statsHandler.Overview)
	router.GET("/api/statistics/users", statsHandler.Users)
	router.GET("/api/statistics/groups", statsHandler.Groups)
	router.GET("/api/statistics/messages", statsHandler.Messages)
	router.GET("/api/statistics/daily", statsHandler.Daily)
	router.GET("/api/statistics/snapshots", statsHandler.Snapshots)
	router.POST("/api/statistics/snapshots", statsHandler.CreateSnapshot)

	workflowHandler := NewWorkflowLogHandler(conn)
	router.GET("/api/workflow-logs", workflowHandler.List)
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func listLen(t *testing.T, body map[string]any, key string) int {
	t.Helper()
	items, ok := body[key].([]any)
	if !ok {
		t.Fatalf("expected %q to be a list, got %T", key, body[key])
	}
	return len(items)
}

func mustUser(t *testing.T, conn *gorm.DB, lineUserID, name string, friend bool) models.LineUser {
	t.Helper()
	row, err := crm.UpsertUser(context.Background(), conn, crm.UserProfile{LineUserID: lineUserID, DisplayName: name, IsFriend: &friend})
	if err != nil {
		t.Fatalf("upsert user %s: %v", lineUserID, err)
	}
	return row
}

func TestHealthAndRoot(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	rec := doRequest(t, router, http.MethodGet, "/api/health", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["database"] != "connected" {
		t.Fatalf("unexpected health body: %v", body)
	}

	rec = doRequest(t, router, http.MethodGet, "/", nil)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["status"] != "running" {
		t.Fatalf("unexpected root body: %s", rec.Body.String())
	}
}

func TestHealthReportsClosedDatabase(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	_ = sqlDB.Close()

	rec := doRequest(t, router, http.MethodGet, "/api/health", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestUserListPagingSearchAndFilters(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	for i := 0; i < 22; i++ {
		mustUser(t, conn, fmt.Sprintf("Ufiller%02d", i), fmt.Sprintf("filler %02d", i), false)
	}
	alice := mustUser(t, conn, "Ualice", "Alice Smith", true)
	mustUser(t, conn, "Ucooper", "alice cooper", false)
	mustUser(t, conn, "Ubob", "Bob", true)
	if _, err := crm.SetUserTags(context.Background(), conn, alice.ID, []string{"vip"}); err != nil {
		t.Fatalf("tag alice: %v", err)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/line-users?page=3&limit=10", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["total"].(float64) != 25 || listLen(t, body, "users") != 5 {
		t.Fatalf("unexpected page 3: total=%v users=%d", body["total"], listLen(t, body, "users"))
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users", nil)
	body = decodeBody(t, rec)
	if body["limit"].(float64) != defaultPageSize || listLen(t, body, "users") != defaultPageSize {
		t.Fatalf("expected default page size, got %v", body["limit"])
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users?search=ALICE", nil)
	body = decodeBody(t, rec)
	if body["total"].(float64) != 2 {
		t.Fatalf("expected 2 case-insensitive matches, got %v", body["total"])
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users?search=alice&is_friend=true", nil)
	body = decodeBody(t, rec)
	if body["total"].(float64) != 1 {
		t.Fatalf("expected filters to intersect, got %v", body["total"])
	}
	first := body["users"].([]any)[0].(map[string]any)
	if first["line_user_id"] != "Ualice" || len(first["tags"].([]any)) != 1 {
		t.Fatalf("unexpected user row: %v", first)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users?tag=vip", nil)
	if decodeBody(t, rec)["total"].(float64) != 1 {
		t.Fatalf("expected tag filter to match alice")
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users?date_to=2000-01-01", nil)
	if decodeBody(t, rec)["total"].(float64) != 0 {
		t.Fatalf("expected no users created before 2000")
	}
	rec = doRequest(t, router, http.MethodGet, "/api/line-users?date_from=2000-01-01", nil)
	if decodeBody(t, rec)["total"].(float64) != 25 {
		t.Fatalf("expected every user created after 2000")
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users?is_friend=maybe", nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec = doRequest(t, router, http.MethodGet, "/api/line-users?date_from=yesterday", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUserUpdateGetDelete(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)
	user := mustUser(t, conn, "Uone", "One", true)
	if _, err := crm.AddGroupMember(context.Background(), conn, "Cgroup", "Uone", ""); err != nil {
		t.Fatalf("add member: %v", err)
	}
	path := fmt.Sprintf("/api/line-users/%d", user.ID)

	rec := doRequest(t, router, http.MethodPut, path, map[string]any{
		"custom_name": "  Important  ",
		"notes":       "call back",
		"tags":        []string{"vip", "lead", "vip"},
	})
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["custom_name"] != "Important" || body["notes"] != "call back" {
		t.Fatalf("unexpected update result: %v", body)
	}
	if len(body["tags"].([]any)) != 2 || len(body["groups"].([]any)) != 1 {
		t.Fatalf("expected 2 tags and 1 group, got %v / %v", body["tags"], body["groups"])
	}

	rec = doRequest(t, router, http.MethodPut, path, map[string]any{"tags": []string{}})
	expectStatus(t, rec, http.StatusOK)
	if len(decodeBody(t, rec)["tags"].([]any)) != 0 {
		t.Fatalf("expected tags to be cleared")
	}

	rec = doRequest(t, router, http.MethodPut, "/api/line-users/9999", map[string]any{"notes": "x"})
	expectStatus(t, rec, http.StatusNotFound)
	rec = doRequest(t, router, http.MethodGet, "/api/line-users/abc", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = doRequest(t, router, http.MethodDelete, path, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = doRequest(t, router, http.MethodGet, path, nil)
	expectStatus(t, rec, http.StatusNotFound)

	group, err := crm.FindGroupByLineID(context.Background(), conn, "Cgroup")
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if group.MemberCount != 0 {
		t.Fatalf("expected member count to drop to 0, got %d", group.MemberCount)
	}
}

func TestGroupListMembersAndUpdate(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)
	ctx := context.Background()

	if _, err := crm.UpsertGroup(ctx, conn, crm.GroupProfile{LineGroupID: "Csales", GroupName: "Sales Team"}); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	if _, err := crm.UpsertGroup(ctx, conn, crm.GroupProfile{LineGroupID: "Cops", GroupName: "Ops"}); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	for _, uid := range []string{"Ua", "Ub"} {
		if _, err := crm.AddGroupMember(ctx, conn, "Csales", uid, ""); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}

	rec := doRequest(t, router, http.MethodGet, "/api/line-groups?search=sales", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["total"].(float64) != 1 {
		t.Fatalf("expected one group, got %v", body["total"])
	}
	sales := body["groups"].([]any)[0].(map[string]any)
	if sales["member_count"].(float64) != 2 {
		t.Fatalf("expected member_count 2, got %v", sales["member_count"])
	}
	path := fmt.Sprintf("/api/line-groups/%v", sales["id"])

	rec = doRequest(t, router, http.MethodGet, path+"/members", nil)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["total"].(float64) != 2 {
		t.Fatalf("expected 2 members: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPut, path, map[string]any{"custom_name": "Sales", "tags": []string{"team"}})
	expectStatus(t, rec, http.StatusOK)
	rec = doRequest(t, router, http.MethodGet, "/api/line-groups?tag=team", nil)
	if decodeBody(t, rec)["total"].(float64) != 1 {
		t.Fatalf("expected tag filter to match the updated group")
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-groups/9999/members", nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = doRequest(t, router, http.MethodDelete, path, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = doRequest(t, router, http.MethodDelete, path, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestMessageCreateMaintainsCounters(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	for _, id := range []string{"m1", "m2"} {
		rec := doRequest(t, router, http.MethodPost, "/api/messages", map[string]any{
			"message_id":    id,
			"line_user_id":  "Usender",
			"line_group_id": "Cchat",
			"message_type":  "text",
			"content":       "Hello " + id,
			"keywords":      []string{"hello"},
		})
		expectStatus(t, rec, http.StatusCreated)
	}
	rec := doRequest(t, router, http.MethodPost, "/api/messages", map[string]any{
		"message_id":   "m3",
		"line_user_id": "Usender",
		"message_type": "image",
		"attachments":  []map[string]any{{"type": "image", "file_url": "https://example.com/a.jpg", "file_size": 42}},
	})
	expectStatus(t, rec, http.StatusCreated)
	if len(decodeBody(t, rec)["attachments"].([]any)) != 1 {
		t.Fatalf("expected attachment in response: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/messages", map[string]any{
		"message_id":   "m1",
		"line_user_id": "Usender",
		"message_type": "text",
	})
	expectStatus(t, rec, http.StatusConflict)
	rec = doRequest(t, router, http.MethodPost, "/api/messages", map[string]any{"line_user_id": "Usender"})
	expectStatus(t, rec, http.StatusBadRequest)

	user, err := crm.FindUserByLineID(context.Background(), conn, "Usender")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.MessageCount != 3 || user.LastMessageAt == nil {
		t.Fatalf("expected 3 counted messages, got %d (last=%v)", user.MessageCount, user.LastMessageAt)
	}
	group, err := crm.FindGroupByLineID(context.Background(), conn, "Cchat")
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if group.MessageCount != 2 || group.MemberCount != 1 {
		t.Fatalf("unexpected group counters: messages=%d members=%d", group.MessageCount, group.MemberCount)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/messages?group_id=Cchat&search=HELLO%20M1", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["total"].(float64) != 1 {
		t.Fatalf("expected one message, got %v", body["total"])
	}
	msg := body["messages"].([]any)[0].(map[string]any)
	if msg["message_id"] != "m1" || len(msg["keywords"].([]any)) != 1 {
		t.Fatalf("unexpected message row: %v", msg)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/messages?message_type=image", nil)
	body = decodeBody(t, rec)
	if body["total"].(float64) != 1 || body["limit"].(float64) != defaultMessagePageSize {
		t.Fatalf("unexpected image filter result: %v", body)
	}

	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/messages/%v", msg["id"]), nil)
	expectStatus(t, rec, http.StatusOK)
	user, _ = crm.FindUserByLineID(context.Background(), conn, "Usender")
	if user.MessageCount != 2 {
		t.Fatalf("expected counter to drop to 2, got %d", user.MessageCount)
	}
}

func TestTagCreateIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	rec := doRequest(t, router, http.MethodPost, "/api/tags", map[string]any{"name": "vip"})
	expectStatus(t, rec, http.StatusCreated)
	created := decodeBody(t, rec)
	if created["color"] != crm.DefaultTagColor || created["created"] != true {
		t.Fatalf("unexpected tag: %v", created)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/tags", map[string]any{"name": "vip", "color": "#000000"})
	expectStatus(t, rec, http.StatusOK)
	again := decodeBody(t, rec)
	if again["id"] != created["id"] || again["color"] != crm.DefaultTagColor {
		t.Fatalf("expected the existing tag back: %v", again)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/tags", map[string]any{"name": "bad", "color": "red"})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = doRequest(t, router, http.MethodPost, "/api/tags", map[string]any{"name": "  "})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = doRequest(t, router, http.MethodGet, "/api/tags", nil)
	if listLen(t, decodeBody(t, rec), "tags") != 1 {
		t.Fatalf("expected one tag: %s", rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/tags/%v", created["id"]), nil)
	expectStatus(t, rec, http.StatusOK)
	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/tags/%v", created["id"]), nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestSettingsRoundTripAndAutoSeed(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	if err := conn.Exec("DELETE FROM system_settings").Error; err != nil {
		t.Fatalf("clear settings: %v", err)
	}
	rec := doRequest(t, router, http.MethodGet, "/api/system-settings", nil)
	expectStatus(t, rec, http.StatusOK)
	if listLen(t, decodeBody(t, rec), "settings") == 0 {
		t.Fatalf("expected defaults to be seeded")
	}

	rec = doRequest(t, router, http.MethodPut, "/api/system-settings/SYSTEM_NAME", map[string]any{"value": "Acme CRM"})
	expectStatus(t, rec, http.StatusOK)
	rec = doRequest(t, router, http.MethodGet, "/api/system-settings/SYSTEM_NAME", nil)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["value"] != "Acme CRM" {
		t.Fatalf("expected round-tripped value: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/system-settings?key=SYSTEM_NAME", nil)
	if listLen(t, decodeBody(t, rec), "settings") != 1 {
		t.Fatalf("expected key filter to return one row")
	}

	rec = doRequest(t, router, http.MethodGet, "/", nil)
	if decodeBody(t, rec)["message"] != "Acme CRM Backend API" {
		t.Fatalf("expected banner to follow the setting: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPut, "/api/system-settings/SYSTEM_NAME", map[string]any{})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = doRequest(t, router, http.MethodPut, "/api/system-settings/NOPE", map[string]any{"value": "x"})
	expectStatus(t, rec, http.StatusNotFound)
	rec = doRequest(t, router, http.MethodGet, "/api/system-settings/NOPE", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestStatisticsEndpoints(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	for i, msgType := range []string{"text", "text", "sticker"} {
		rec := doRequest(t, router, http.MethodPost, "/api/messages", map[string]any{
			"message_id":   fmt.Sprintf("s%d", i),
			"line_user_id": "Ustats",
			"message_type": msgType,
			"content":      "hi",
		})
		expectStatus(t, rec, http.StatusCreated)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/statistics", nil)
	expectStatus(t, rec, http.StatusOK)
	overview := decodeBody(t, rec)
	messages := overview["messages"].(map[string]any)
	users := overview["users"].(map[string]any)
	if messages["total"].(float64) != 3 || users["total"].(float64) != 1 {
		t.Fatalf("unexpected overview: %v", overview)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/statistics/messages?days=1", nil)
	expectStatus(t, rec, http.StatusOK)
	if listLen(t, decodeBody(t, rec), "types") != 2 {
		t.Fatalf("expected two message types: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/statistics/users?limit=5", nil)
	expectStatus(t, rec, http.StatusOK)
	if listLen(t, decodeBody(t, rec), "users") != 1 {
		t.Fatalf("expected one active user: %s", rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/statistics/daily?days=3", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = doRequest(t, router, http.MethodPost, "/api/statistics/snapshots", nil)
	expectStatus(t, rec, http.StatusCreated)
	rec = doRequest(t, router, http.MethodPost, "/api/statistics/snapshots", map[string]any{"date": "not-a-date"})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = doRequest(t, router, http.MethodGet, "/api/statistics/snapshots", nil)
	expectStatus(t, rec, http.StatusOK)
	if listLen(t, decodeBody(t, rec), "snapshots") != 1 {
		t.Fatalf("expected one snapshot: %s", rec.Body.String())
	}
}

func TestWorkflowLogFilters(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)

	for i, status := range []string{"success", "error", "success"} {
		row := models.WorkflowLog{WorkflowName: "sync", ExecutionID: fmt.Sprintf("e%d", i), Status: status}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("insert log: %v", err)
		}
	}
	rec := doRequest(t, router, http.MethodGet, "/api/workflow-logs?status=success", nil)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["total"].(float64) != 2 {
		t.Fatalf("expected two successful runs: %s", rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodGet, "/api/workflow-logs?workflow_name=other", nil)
	if decodeBody(t, rec)["total"].(float64) != 0 {
		t.Fatalf("expected no runs for other workflow")
	}
}

func TestMessageListFiltersIntersectAndPagesInOrder(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)
	ctx := context.Background()

	day := func(d, hour int) time.Time { return time.Date(2026, time.March, d, hour, 0, 0, 0, time.UTC) }
	seed := []struct {
		id   string
		user string
		at   time.Time
	}{
		{"a1", "Ua", day(1, 9)},
		{"a2", "Ua", day(2, 9)},
		{"a3", "Ua", day(3, 9)},
		{"a3b", "Ua", day(3, 9)},
		{"a4", "Ua", day(4, 23)},
		{"a5", "Ua", day(5, 0)},
		{"b2", "Ub", day(2, 10)},
		{"b3", "Ub", day(3, 10)},
		{"b4", "Ub", day(4, 10)},
	}
	for _, m := range seed {
		if _, err := crm.RecordMessage(ctx, conn, crm.MessageInput{MessageID: m.id, LineUserID: m.user, Type: "text", Content: m.id, SentAt: m.at}); err != nil {
			t.Fatalf("record %s: %v", m.id, err)
		}
	}

	pageIDs := func(path string) (float64, []string) {
		t.Helper()
		rec := doRequest(t, router, http.MethodGet, path, nil)
		expectStatus(t, rec, http.StatusOK)
		body := decodeBody(t, rec)
		var ids []string
		for _, item := range body["messages"].([]any) {
			ids = append(ids, item.(map[string]any)["message_id"].(string))
		}
		return body["total"].(float64), ids
	}

	filter := "/api/messages?user_id=Ua&date_from=2026-03-02&date_to=2026-03-04"
	total, ids := pageIDs(filter + "&page=1&limit=3")
	if total != 4 {
		t.Fatalf("expected user and date filters to intersect to 4 rows, got %v", total)
	}
	// Equal timestamps fall back to id order, newest row first.
	if got := strings.Join(ids, ","); got != "a4,a3b,a3" {
		t.Fatalf("unexpected first page %q", got)
	}
	total, ids = pageIDs(filter + "&page=2&limit=3")
	if got := strings.Join(ids, ","); total != 4 || got != "a2" {
		t.Fatalf("unexpected second page %q (total %v)", got, total)
	}
	total, ids = pageIDs(filter + "&page=3&limit=3")
	if total != 4 || len(ids) != 0 {
		t.Fatalf("expected an empty page past the end, got %v (total %v)", ids, total)
	}

	total, ids = pageIDs("/api/messages?date_from=2026-03-03&date_to=2026-03-03&limit=2&page=2")
	if got := strings.Join(ids, ","); total != 3 || got != "a3" {
		t.Fatalf("unexpected single-day page %q (total %v)", got, total)
	}
}

func TestPagingClampsOutOfRangeValues(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)
	mustUser(t, conn, "Uone", "One", true)

	rec := doRequest(t, router, http.MethodGet, "/api/line-users?page=0&limit=-5", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	if body["page"].(float64) != 1 || body["limit"].(float64) != defaultPageSize || listLen(t, body, "users") != 1 {
		t.Fatalf("expected page 1 with the default limit, got %v", body)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/messages?limit=100000", nil)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["limit"].(float64) != maxPageSize {
		t.Fatalf("expected limit capped at %d", maxPageSize)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/line-users?page=two", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUpdateRollsBackWhenTagsFail(t *testing.T) {
	conn := newTestDB(t)
	router := newTestRouter(t, conn)
	ctx := context.Background()
	user := mustUser(t, conn, "Uone", "One", true)
	group, err := crm.UpsertGroup(ctx, conn, crm.GroupProfile{LineGroupID: "Cone", GroupName: "One"})
	if err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	userPath := fmt.Sprintf("/api/line-users/%d", user.ID)
	groupPath := fmt.Sprintf("/api/line-groups/%d", group.ID)

	longName := strings.Repeat("x", 101)
	for _, path := range []string{userPath, groupPath} {
		rec := doRequest(t, router, http.MethodPut, path, map[string]any{"custom_name": "Changed", "tags": []string{"ok", longName}})
		expectStatus(t, rec, http.StatusBadRequest)
		if msg := decodeBody(t, rec)["error"]; msg != "tag name must be 1-100 characters" {
			t.Fatalf("unexpected error message %q", msg)
		}
	}

	customName := func(table string, id uint64) string {
		t.Helper()
		var name string
		if errScan := conn.Raw("SELECT custom_name FROM "+table+" WHERE id = ?", id).Scan(&name).Error; errScan != nil {
			t.Fatalf("read %s: %v", table, errScan)
		}
		return name
	}
	if customName("line_users", user.ID) != "" || customName("line_groups", group.ID) != "" {
		t.Fatalf("expected rejected tags to leave the rows untouched")
	}
	var okTags int64
	conn.Table("tags").Where("name = ?", "ok").Count(&okTags)
	if okTags != 0 {
		t.Fatalf("expected the valid name in a rejected set not to be created")
	}

	// A storage failure while linking tags must undo the field update.
	for _, table := range []string{"user_tags", "group_tags"} {
		if errDrop := conn.Exec("DROP TABLE " + table).Error; errDrop != nil {
			t.Fatalf("drop %s: %v", table, errDrop)
		}
	}
	rec := doRequest(t, router, http.MethodPut, userPath, map[string]any{"custom_name": "Changed", "tags": []string{"vip"}})
	expectStatus(t, rec, http.StatusInternalServerError)
	rec = doRequest(t, router, http.MethodPut, groupPath, map[string]any{"custom_name": "Changed", "tags": []string{"vip"}})
	expectStatus(t, rec, http.StatusInternalServerError)
	if customName("line_users", user.ID) != "" || customName("line_groups", group.ID) != "" {
		t.Fatalf("expected the failed tag write to roll back custom_name")
	}
}
