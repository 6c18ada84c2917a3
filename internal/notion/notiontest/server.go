// Package notiontest 提供基于 httptest 的内存 Notion 服务，用于测试
// Package notiontest provides an in-memory, httptest-backed Notion server for tests.
package notiontest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"insight/internal/config"
	"insight/internal/notion"
)

type Request struct {
	Method string
	Path   string
}

type failure struct {
	method     string
	prefix     string
	status     int
	retryAfter string
}

type Server struct {
	*httptest.Server

	// PageSize 控制子块分页大小
	// PageSize controls children pagination
	PageSize int

	mu       sync.Mutex
	children map[string][]notion.Block
	records  map[string][]notion.Record
	failures []failure
	requests []Request
	nextID   int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		PageSize: 100,
		children: map[string][]notion.Block{},
		records:  map[string][]notion.Record{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Config returns a Notion config pointing at the server.
func (s *Server) Config() config.NotionConfig {
	cfg := config.Default().Notion
	cfg.BaseURL = s.URL
	cfg.Token = "test-token"
	return cfg
}

func (s *Server) NotionClient() *notion.Client {
	return notion.NewClient(s.Config())
}

// AddBlock appends a block under parentID and returns its ID.
func (s *Server) AddBlock(parentID string, b notion.Block) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = s.newID()
	}
	s.children[parentID] = append(s.children[parentID], b)
	return b.ID
}

// AddParagraphs adds paragraph blocks, e.g. as a journal page body.
func (s *Server) AddParagraphs(parentID string, lines ...string) {
	for _, line := range lines {
		s.AddBlock(parentID, notion.Block{
			Type:    notion.BlockTypeParagraph,
			Content: &notion.Content{RichText: notion.TextSegments(line)},
		})
	}
}

func (s *Server) AddRecord(databaseID string, rec notion.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	s.records[databaseID] = append(s.records[databaseID], rec)
}

// Blocks returns a copy of parentID's children.
func (s *Server) Blocks(parentID string) []notion.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notion.Block(nil), s.children[parentID]...)
}

// FailNext 让下一个匹配的请求返回 status
// FailNext makes the next request matching method and path prefix answer with status
func (s *Server) FailNext(method, pathPrefix string, status int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, prefix: pathPrefix, status: status, retryAfter: retryAfter})
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path prefix.
func (s *Server) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) newID() string {
	s.nextID++
	return fmt.Sprintf("blk-%04d", s.nextID)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path})

	for i, f := range s.failures {
		if f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			writeError(w, f.status, "injected_failure", "injected failure")
			return
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "blocks" && parts[2] == "children" && r.Method == http.MethodGet:
		s.listChildren(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "blocks" && parts[2] == "children" && r.Method == http.MethodPatch:
		s.appendChildren(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "blocks" && r.Method == http.MethodPatch:
		s.updateBlock(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "databases" && parts[2] == "query" && r.Method == http.MethodPost:
		s.query(w, r, parts[1])
	default:
		writeError(w, http.StatusNotFound, "object_not_found", "no route for "+r.Method+" "+r.URL.Path)
	}
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request, parentID string) {
	all := s.children[parentID]
	start := 0
	if c := r.URL.Query().Get("start_cursor"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 || n > len(all) {
			writeError(w, http.StatusBadRequest, "validation_error", "bad cursor")
			return
		}
		start = n
	}
	size := s.PageSize
	if size <= 0 {
		size = 100
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	out := map[string]any{
		"object":      "list",
		"results":     encodeBlocks(all[start:end]),
		"has_more":    end < len(all),
		"next_cursor": nil,
	}
	if end < len(all) {
		out["next_cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) appendChildren(w http.ResponseWriter, r *http.Request, parentID string) {
	var body struct {
		Children []notion.Block `json:"children"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Children) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "children required")
		return
	}
	created := make([]notion.Block, 0, len(body.Children))
	for _, b := range body.Children {
		b.ID = s.newID()
		s.children[parentID] = append(s.children[parentID], b)
		created = append(created, b)
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": encodeBlocks(created)})
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request, blockID string) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "bad body")
		return
	}
	for parent, blocks := range s.children {
		for i, b := range blocks {
			if b.ID != blockID {
				continue
			}
			payload, ok := raw[b.Type]
			if !ok {
				writeError(w, http.StatusBadRequest, "validation_error", "type mismatch")
				return
			}
			var content notion.Content
			if err := json.Unmarshal(payload, &content); err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", err.Error())
				return
			}
			b.Content = &content
			s.children[parent][i] = b
			writeJSON(w, http.StatusOK, encodeBlock(b))
			return
		}
	}
	writeError(w, http.StatusNotFound, "object_not_found", "block not found")
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, databaseID string) {
	var q notion.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "bad query")
		return
	}
	records, ok := s.records[databaseID]
	if !ok {
		writeError(w, http.StatusNotFound, "object_not_found", "database not found")
		return
	}
	var out []notion.Record
	for _, rec := range records {
		if q.Filter != nil && q.Filter.Select != nil && rec.Text(q.Filter.Property) != q.Filter.Select.Equals {
			continue
		}
		out = append(out, rec)
	}
	for _, srt := range q.Sorts {
		if srt.Timestamp == "created_time" {
			desc := srt.Direction == "descending"
			sort.SliceStable(out, func(i, j int) bool {
				if desc {
					return out[i].CreatedTime.After(out[j].CreatedTime)
				}
				return out[i].CreatedTime.Before(out[j].CreatedTime)
			})
		}
	}
	if q.PageSize > 0 && len(out) > q.PageSize {
		out = out[:q.PageSize]
	}
	if out == nil {
		out = []notion.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": out, "has_more": false, "next_cursor": nil})
}

func encodeBlocks(blocks []notion.Block) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, encodeBlock(b))
	}
	return out
}

func encodeBlock(b notion.Block) map[string]any {
	m := map[string]any{
		"object":       "block",
		"id":           b.ID,
		"type":         b.Type,
		"has_children": b.HasChildren,
	}
	if b.Content != nil {
		rich := make([]map[string]any, 0, len(b.Content.RichText))
		for _, rt := range b.Content.RichText {
			rich = append(rich, map[string]any{
				"type":       "text",
				"text":       map[string]string{"content": rt.Plain()},
				"plain_text": rt.Plain(),
			})
		}
		content := map[string]any{"rich_text": rich}
		if b.Content.Icon != nil {
			content["icon"] = b.Content.Icon
		}
		if b.Content.Color != "" {
			content["color"] = b.Content.Color
		}
		m[b.Type] = content
	} else {
		m[b.Type] = map[string]any{}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"object": "error", "status": status, "code": code, "message": message})
}
