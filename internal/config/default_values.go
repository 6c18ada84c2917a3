package config

const (
	// DefaultBlockMaxChars 是 Notion 单个 rich_text 文本对象的长度上限
	// DefaultBlockMaxChars is Notion's per rich_text object content limit
	DefaultBlockMaxChars = 2000

	// MinBlockMaxChars 容纳标题行、箴言与洞察所需的最小长度
	// MinBlockMaxChars is the smallest ceiling that holds the header, wisdom and insight
	MinBlockMaxChars = 600

	DefaultRetryMaxAttempts = 4
	MaxRetryAttempts        = 10
)
