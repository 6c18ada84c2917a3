package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"insight/internal/config"
)

const maxErrorBody = 64 << 10

// Client 是 Notion REST API 的最小客户端：块读写与数据库查询
// Client is a minimal Notion REST client covering block reads/writes and database queries
type Client struct {
	baseURL    string
	token      string
	version    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg config.NotionConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		version: cfg.Version,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
		now: time.Now,
	}
}

// ListChildren 读取一页顶层子块；cursor 为空表示第一页
// ListChildren reads one page of top-level children; an empty cursor starts from the beginning
func (c *Client) ListChildren(ctx context.Context, parentID, cursor string) (BlockList, error) {
	q := url.Values{}
	q.Set("page_size", "100")
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	var out BlockList
	path := "/blocks/" + url.PathEscape(parentID) + "/children?" + q.Encode()
	if err := c.do(ctx, "list children", http.MethodGet, path, nil, &out); err != nil {
		return BlockList{}, err
	}
	return out, nil
}

// AppendBlock 在父块末尾追加一个子块并返回新块
// AppendBlock appends a child to parentID and returns the created block
func (c *Client) AppendBlock(ctx context.Context, parentID string, block Block) (Block, error) {
	payload := map[string]any{"children": []Block{block}}
	var out BlockList
	path := "/blocks/" + url.PathEscape(parentID) + "/children"
	if err := c.do(ctx, "append block", http.MethodPatch, path, payload, &out); err != nil {
		return Block{}, err
	}
	if len(out.Results) == 0 {
		return Block{}, fmt.Errorf("notion append block: response has no results")
	}
	return out.Results[len(out.Results)-1], nil
}

// UpdateBlock 原地替换块的内容（保持块 ID 与位置）
// UpdateBlock replaces a block's content in place, keeping its ID and position
func (c *Client) UpdateBlock(ctx context.Context, block Block) (Block, error) {
	if strings.TrimSpace(block.ID) == "" {
		return Block{}, fmt.Errorf("notion update block: id is empty")
	}
	if block.Content == nil {
		return Block{}, fmt.Errorf("notion update block %s: content is empty", block.ID)
	}
	payload := map[string]any{block.Type: block.Content}
	var out Block
	path := "/blocks/" + url.PathEscape(block.ID)
	if err := c.do(ctx, "update block", http.MethodPatch, path, payload, &out); err != nil {
		return Block{}, err
	}
	return out, nil
}

// QueryDatabase 返回查询结果的第一页
// QueryDatabase returns the first page of a database query
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, query Query) ([]Record, error) {
	var out queryResponse
	path := "/databases/" + url.PathEscape(databaseID) + "/query"
	if err := c.do(ctx, "query database", http.MethodPost, path, query, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// PageText 返回记录页面中文本块的纯文本，每块一行，空块跳过
// PageText returns the plain text of a record page's text blocks, one per block, skipping empty ones
func (c *Client) PageText(ctx context.Context, pageID string) ([]string, error) {
	var lines []string
	cursor := ""
	for {
		list, err := c.ListChildren(ctx, pageID, cursor)
		if err != nil {
			return nil, err
		}
		for _, b := range list.Results {
			if text := strings.TrimSpace(b.PlainText()); text != "" {
				lines = append(lines, text)
			}
		}
		if !list.HasMore || list.NextCursor == nil || *list.NextCursor == "" {
			return lines, nil
		}
		cursor = *list.NextCursor
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal notion %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create notion %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notion %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse notion %s response: %w", op, err)
	}
	return nil
}

func (c *Client) apiError(op string, resp *http.Response) error {
	apiErr := &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var raw struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err == nil && (raw.Code != "" || raw.Message != "") {
		apiErr.Code = raw.Code
		apiErr.Message = raw.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
