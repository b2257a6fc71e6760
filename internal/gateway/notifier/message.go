package notifier

import (
	"strings"
	"time"
)

// Telegram 单条消息上限 4096，预留余量。
const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 是统一格式的推送，段落内容放在代码块里避免 Markdown 转义问题。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

func (m StructuredMessage) Empty() bool {
	if strings.TrimSpace(m.Title) != "" {
		return false
	}
	for _, sec := range m.Sections {
		if len(cleanLines(sec.Lines)) > 0 {
			return false
		}
	}
	return true
}

// RenderMarkdown 生成 Markdown 文本，超长时截断。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString("*" + escapeInline(header) + "*\n\n")
	}
	b.WriteString(renderSections(m.Sections))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString("`" + strings.ReplaceAll(footer, "`", "'") + "`\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = body[:maxStructuredMessageLen] + "..."
	}
	return body
}

func renderSections(secs []MessageSection) string {
	var b strings.Builder
	for _, sec := range secs {
		lines := cleanLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(fence(title) + "\n")
		}
		for _, line := range lines {
			b.WriteString("- " + fence(line) + "\n")
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "```\n" + b.String() + "```\n\n"
}

func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func fence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

func escapeInline(s string) string {
	return strings.NewReplacer("*", "\\*", "_", "\\_", "`", "'").Replace(s)
}
