package notion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/spf13/cast"
)

// MaxTextContent 是单个 text 对象 content 字段的长度上限
// MaxTextContent is the content limit of a single text object
const MaxTextContent = 2000

const (
	BlockTypeCallout   = "callout"
	BlockTypeParagraph = "paragraph"
)

// textBlockTypes 是承载 rich_text 的块类型；其余类型在读取正文时被忽略
// textBlockTypes carry rich_text; other types are skipped when reading page text
var textBlockTypes = map[string]struct{}{
	"paragraph": {}, "heading_1": {}, "heading_2": {}, "heading_3": {},
	"bulleted_list_item": {}, "numbered_list_item": {}, "to_do": {},
	"quote": {}, "callout": {}, "toggle": {},
}

// RichText 只建模本项目使用的 text 片段；mention/equation 读取时仅保留 plain_text
// RichText models the text segment kind only; mentions and equations keep their plain_text on read
type RichText struct {
	Type      string       `json:"type"`
	Text      *TextSegment `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type TextSegment struct {
	Content string `json:"content"`
}

// Plain 返回片段的纯文本
// Plain returns the segment's plain text
func (r RichText) Plain() string {
	if r.PlainText != "" {
		return r.PlainText
	}
	if r.Text != nil {
		return r.Text.Content
	}
	return ""
}

// TextSegments 将正文切分为 text 片段，每段不超过 MaxTextContent 个 UTF-16 码元
// TextSegments splits body into text segments of at most MaxTextContent UTF-16 code units
func TextSegments(body string) []RichText {
	out := []RichText{}
	var b strings.Builder
	units := 0
	for _, r := range body {
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		if units+n > MaxTextContent {
			out = append(out, RichText{Type: "text", Text: &TextSegment{Content: b.String()}})
			b.Reset()
			units = 0
		}
		b.WriteRune(r)
		units += n
	}
	if b.Len() > 0 {
		out = append(out, RichText{Type: "text", Text: &TextSegment{Content: b.String()}})
	}
	return out
}

type Icon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji,omitempty"`
}

// EmojiIcon builds an emoji icon.
func EmojiIcon(emoji string) *Icon {
	return &Icon{Type: "emoji", Emoji: emoji}
}

// Content 是文本类块共享的负载结构（rich_text + 可选 icon/color）
// Content is the payload shared by text-bearing blocks (rich_text plus optional icon/color)
type Content struct {
	RichText []RichText `json:"rich_text"`
	Icon     *Icon      `json:"icon,omitempty"`
	Color    string     `json:"color,omitempty"`
}

// PlainText 拼接全部片段的纯文本
// PlainText concatenates the plain text of every segment
func (c Content) PlainText() string {
	var b strings.Builder
	for _, rt := range c.RichText {
		b.WriteString(rt.Plain())
	}
	return b.String()
}

// Block 是页面的顶层子块。Content 仅对 textBlockTypes 有值
// Block is a top-level child of a page. Content is set for textBlockTypes only
type Block struct {
	ID          string
	Type        string
	HasChildren bool
	Content     *Content
}

// NewCallout 构造待写入的 callout 块
// NewCallout builds a callout block ready to be written
func NewCallout(body, emoji, color string) Block {
	return Block{
		Type: BlockTypeCallout,
		Content: &Content{
			RichText: TextSegments(body),
			Icon:     EmojiIcon(emoji),
			Color:    color,
		},
	}
}

// PlainText returns the block's text, or "" for blocks without rich text.
func (b Block) PlainText() string {
	if b.Content == nil {
		return ""
	}
	return b.Content.PlainText()
}

// IconEmoji returns the block's emoji icon, or "".
func (b Block) IconEmoji() string {
	if b.Content == nil || b.Content.Icon == nil {
		return ""
	}
	return b.Content.Icon.Emoji
}

func (b Block) MarshalJSON() ([]byte, error) {
	if strings.TrimSpace(b.Type) == "" {
		return nil, fmt.Errorf("marshal block: type is empty")
	}
	out := map[string]any{
		"object": "block",
		"type":   b.Type,
	}
	if b.Content != nil {
		out[b.Type] = b.Content
	}
	return json.Marshal(out)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var head struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.ID = head.ID
	b.Type = head.Type
	b.HasChildren = head.HasChildren
	b.Content = nil
	if _, ok := textBlockTypes[head.Type]; !ok {
		return nil
	}
	payload, ok := raw[head.Type]
	if !ok {
		return nil
	}
	var content Content
	if err := json.Unmarshal(payload, &content); err != nil {
		return fmt.Errorf("decode %s block %s: %w", head.Type, head.ID, err)
	}
	b.Content = &content
	return nil
}

// BlockList 是一页子块
// BlockList is one page of children
type BlockList struct {
	Results    []Block `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// Option 是 select/status 的取值
// Option is a select or status value
type Option struct {
	Name string `json:"name"`
}

// Property 是数据库记录的属性值。number/formula 保持原始 JSON 值，读取时用 cast 转换
// Property is a database record property. number and formula stay loosely typed and are coerced with cast
type Property struct {
	Type        string         `json:"type"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Select      *Option        `json:"select,omitempty"`
	Status      *Option        `json:"status,omitempty"`
	MultiSelect []Option       `json:"multi_select,omitempty"`
	Number      any            `json:"number,omitempty"`
	Formula     map[string]any `json:"formula,omitempty"`
	Checkbox    *bool          `json:"checkbox,omitempty"`
}

// Record 是数据库查询返回的一页记录
// Record is a page returned by a database query
type Record struct {
	ID          string              `json:"id"`
	CreatedTime time.Time           `json:"created_time"`
	Properties  map[string]Property `json:"properties"`
}

// Text 返回 title/rich_text/select/status 属性的文本
// Text returns the text of a title, rich_text, select or status property
func (r Record) Text(name string) string {
	p, ok := r.Properties[name]
	if !ok {
		return ""
	}
	switch p.Type {
	case "title":
		return joinPlain(p.Title)
	case "rich_text":
		return joinPlain(p.RichText)
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	case "status":
		if p.Status != nil {
			return p.Status.Name
		}
	case "formula":
		if v, ok := p.Formula["string"]; ok {
			return cast.ToString(v)
		}
	}
	return ""
}

// Title returns the text of the record's title property, whatever it is named.
func (r Record) Title() string {
	for _, p := range r.Properties {
		if p.Type == "title" {
			return joinPlain(p.Title)
		}
	}
	return ""
}

// Number 读取 number 或 formula(number) 属性
// Number reads a number or number-valued formula property
func (r Record) Number(name string) (float64, bool) {
	p, ok := r.Properties[name]
	if !ok {
		return 0, false
	}
	var raw any
	switch p.Type {
	case "number":
		raw = p.Number
	case "formula":
		raw = p.Formula["number"]
	default:
		return 0, false
	}
	if raw == nil {
		return 0, false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func joinPlain(items []RichText) string {
	var b strings.Builder
	for _, rt := range items {
		b.WriteString(rt.Plain())
	}
	return strings.TrimSpace(b.String())
}

// Filter 是数据库查询的单属性过滤条件
// Filter is a single-property database query filter
type Filter struct {
	Property string  `json:"property"`
	Select   *Equals `json:"select,omitempty"`
}

type Equals struct {
	Equals string `json:"equals"`
}

// SelectEquals filters a select property by value.
func SelectEquals(property, value string) *Filter {
	return &Filter{Property: property, Select: &Equals{Equals: value}}
}

// Sort 按属性或时间戳排序
// Sort orders results by property or timestamp
type Sort struct {
	Property  string `json:"property,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Direction string `json:"direction"`
}

// NewestFirst sorts by created_time descending.
func NewestFirst() Sort {
	return Sort{Timestamp: "created_time", Direction: "descending"}
}

type Query struct {
	Filter   *Filter `json:"filter,omitempty"`
	Sorts    []Sort  `json:"sorts,omitempty"`
	PageSize int     `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []Record `json:"results"`
	NextCursor *string  `json:"next_cursor"`
	HasMore    bool     `json:"has_more"`
}
