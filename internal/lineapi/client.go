// Package lineapi wraps the LINE Messaging API endpoints the CRM needs to
// enrich contacts, plus webhook signature validation.
package lineapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	log "github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 10 * time.Second

// ErrNoAccessToken is returned when no channel access token is configured.
var ErrNoAccessToken = errors.New("lineapi: channel access token not configured")

// TokenSource returns the current channel access token.
type TokenSource func() string

// APIError carries a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lineapi: status %d", e.StatusCode)
	}
	return fmt.Sprintf("lineapi: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Profile is a user profile.
type Profile struct {
	UserID        string
	DisplayName   string
	PictureURL    string
	StatusMessage string
	Language      string
}

// GroupSummary is a group's name and icon.
type GroupSummary struct {
	GroupID    string
	GroupName  string
	PictureURL string
}

// Client calls the Messaging API through the LINE SDK.
// The token is read on every call so rotated tokens apply immediately.
type Client struct {
	baseURL        string
	token          TokenSource
	httpClient     *http.Client
	requestTimeout time.Duration
}

// NewClient builds a client rooted at baseURL (https://api.line.me in production).
func NewClient(baseURL string, token TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:          token,
		httpClient:     httpClient,
		requestTimeout: defaultRequestTimeout,
	}
}

// GetProfile fetches a user's profile. Only users who friended the account are visible.
func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	api, cancel, errAPI := c.api(ctx)
	if errAPI != nil {
		return Profile{}, errAPI
	}
	defer cancel()
	resp, out, errGet := api.GetProfileWithHttpInfo(userID)
	if errGet != nil {
		return Profile{}, wrapError("get profile", resp, errGet)
	}
	return Profile{
		UserID:        out.UserId,
		DisplayName:   out.DisplayName,
		PictureURL:    out.PictureUrl,
		StatusMessage: out.StatusMessage,
		Language:      out.Language,
	}, nil
}

// GetGroupSummary fetches a group's name and icon.
func (c *Client) GetGroupSummary(ctx context.Context, groupID string) (GroupSummary, error) {
	api, cancel, errAPI := c.api(ctx)
	if errAPI != nil {
		return GroupSummary{}, errAPI
	}
	defer cancel()
	resp, out, errGet := api.GetGroupSummaryWithHttpInfo(groupID)
	if errGet != nil {
		return GroupSummary{}, wrapError("get group summary", resp, errGet)
	}
	return GroupSummary{GroupID: out.GroupId, GroupName: out.GroupName, PictureURL: out.PictureUrl}, nil
}

// GetGroupMemberProfile fetches a member's profile within a group.
func (c *Client) GetGroupMemberProfile(ctx context.Context, groupID, userID string) (Profile, error) {
	api, cancel, errAPI := c.api(ctx)
	if errAPI != nil {
		return Profile{}, errAPI
	}
	defer cancel()
	resp, out, errGet := api.GetGroupMemberProfileWithHttpInfo(groupID, userID)
	if errGet != nil {
		return Profile{}, wrapError("get group member profile", resp, errGet)
	}
	return Profile{UserID: out.UserId, DisplayName: out.DisplayName, PictureURL: out.PictureUrl}, nil
}

// GetGroupMemberCount returns the number of members in a group.
func (c *Client) GetGroupMemberCount(ctx context.Context, groupID string) (int64, error) {
	api, cancel, errAPI := c.api(ctx)
	if errAPI != nil {
		return 0, errAPI
	}
	defer cancel()
	resp, out, errGet := api.GetGroupMemberCountWithHttpInfo(groupID)
	if errGet != nil {
		return 0, wrapError("get group member count", resp, errGet)
	}
	return int64(out.Count), nil
}

func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, context.CancelFunc, error) {
	token := ""
	if c.token != nil {
		token = strings.TrimSpace(c.token())
	}
	if token == "" {
		return nil, nil, ErrNoAccessToken
	}
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(c.httpClient)}
	if c.baseURL != "" {
		opts = append(opts, messaging_api.WithEndpoint(c.baseURL))
	}
	api, errNew := messaging_api.NewMessagingApiAPI(token, opts...)
	if errNew != nil {
		return nil, nil, fmt.Errorf("lineapi: build client: %w", errNew)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	return api.WithContext(reqCtx), cancel, nil
}

// wrapError turns a non-2xx SDK response into an APIError.
func wrapError(op string, resp *http.Response, err error) error {
	if resp == nil || resp.StatusCode/100 == 2 {
		return fmt.Errorf("lineapi: %s: %w", op, err)
	}
	payload, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errClose := resp.Body.Close(); errClose != nil {
		log.Errorf("lineapi: close response body error: %v", errClose)
	}
	if errRead != nil || len(payload) == 0 {
		// The SDK folds the body into its error text when it has already drained it.
		_, body, _ := strings.Cut(err.Error(), ", ")
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage([]byte(body))}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(payload)}
}

func errorMessage(payload []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if errUnmarshal := json.Unmarshal(payload, &parsed); errUnmarshal == nil && parsed.Message != "" {
		return parsed.Message
	}
	trimmed := strings.TrimSpace(string(payload))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200] + "..."
	}
	return trimmed
}
