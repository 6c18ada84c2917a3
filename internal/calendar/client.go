package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"insight/internal/config"
)

// Client 是 Google Calendar events.list 的只读客户端
// Client is a read-only client for Google Calendar events.list
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// NewFromConfig 选择令牌来源：AccessToken 优先，其次 Credentials / CredentialsFile
// NewFromConfig picks the token source: AccessToken first, then Credentials or CredentialsFile
func NewFromConfig(cfg config.CalendarConfig) (*Client, error) {
	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	if tok := strings.TrimSpace(cfg.AccessToken); tok != "" {
		return NewClient(cfg.BaseURL, StaticToken(tok), httpClient), nil
	}

	raw := strings.TrimSpace(cfg.Credentials)
	if raw == "" && strings.TrimSpace(cfg.CredentialsFile) != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read calendar credentials: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, ErrNoCredentials
	}
	key, err := ParseServiceAccountKey([]byte(raw))
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.BaseURL, NewServiceAccountSource(key, cfg.TokenURL, httpClient), httpClient), nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

type rawEvent struct {
	ID      string    `json:"id"`
	Status  string    `json:"status"`
	Summary string    `json:"summary"`
	Start   eventTime `json:"start"`
	End     eventTime `json:"end"`
}

type eventsResponse struct {
	Items         []rawEvent `json:"items"`
	NextPageToken string     `json:"nextPageToken"`
}

// ListEvents 返回 [start, end) 内按开始时间排序的事件，展开重复事件，跳过已取消事件
// ListEvents returns events in [start, end) ordered by start time, with recurrences expanded and cancelled events skipped
func (c *Client) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error) {
	if strings.TrimSpace(calendarID) == "" {
		return nil, fmt.Errorf("calendar id is empty")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	loc := start.Location()
	var events []Event
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", start.Format(time.RFC3339))
		q.Set("timeMax", end.Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("timeZone", loc.String())
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		page, err := c.fetch(ctx, token, calendarID, q)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := convertEvent(item, loc)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) fetch(ctx context.Context, token, calendarID string, q url.Values) (eventsResponse, error) {
	endpoint := c.baseURL + "/calendars/" + url.PathEscape(calendarID) + "/events?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eventsResponse{}, fmt.Errorf("create events request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eventsResponse{}, fmt.Errorf("send events request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return eventsResponse{}, &APIError{Op: "list events", StatusCode: resp.StatusCode, Message: string(data)}
	}
	var out eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return eventsResponse{}, fmt.Errorf("parse events response: %w", err)
	}
	return out, nil
}

func convertEvent(item rawEvent, loc *time.Location) (Event, error) {
	ev := Event{ID: item.ID, Title: strings.TrimSpace(item.Summary)}
	if item.Start.DateTime != "" {
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return Event{}, fmt.Errorf("parse start of event %s: %w", item.ID, err)
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return Event{}, fmt.Errorf("parse end of event %s: %w", item.ID, err)
		}
		ev.Start = start.In(loc)
		ev.End = end.In(loc)
		return ev, nil
	}

	start, err := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
	if err != nil {
		return Event{}, fmt.Errorf("parse date of event %s: %w", item.ID, err)
	}
	end := start.AddDate(0, 0, 1)
	if item.End.Date != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", item.End.Date, loc); err == nil {
			end = parsed
		}
	}
	ev.Start = start
	ev.End = end
	ev.AllDay = true
	return ev, nil
}
