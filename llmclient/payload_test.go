package llmclient

import (
	"strings"
	"testing"

	"github.com/lianxi-ai/tutorcore/domain"
)

func TestBuildMessagesPlainText(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Text: "什么是质数?"},
		{Role: domain.RoleAssistant, Text: "质数是..."},
	}

	out := BuildMessages(history)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != "user" || out[0].Content != "什么是质数?" {
		t.Fatalf("unexpected first message: %+v", out[0])
	}
	if _, ok := out[1].Content.(string); !ok {
		t.Fatalf("assistant content should stay a string")
	}
}

func TestBuildMessagesWithImages(t *testing.T) {
	history := []domain.Message{
		{
			Role:      domain.RoleUser,
			Text:      "请批改",
			ImageURLs: []string{"https://img/1.png", "https://img/2.png"},
		},
	}

	out := BuildMessages(history)
	parts, ok := out[0].Content.([]ContentPart)
	if !ok {
		t.Fatalf("expected part list, got %T", out[0].Content)
	}
	if len(parts) != 3 {
		t.Fatalf("expected text + 2 image parts, got %d", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "请批改" {
		t.Fatalf("unexpected text part: %+v", parts[0])
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL.URL != "https://img/1.png" {
		t.Fatalf("unexpected image part: %+v", parts[1])
	}
	if parts[2].ImageURL.URL != "https://img/2.png" {
		t.Fatalf("image order not preserved: %+v", parts[2])
	}
}

func TestBuildMessagesInlinesAttachments(t *testing.T) {
	history := []domain.Message{
		{
			Role: domain.RoleUser,
			Text: "看看这段代码",
			FileAttachments: []domain.FileAttachment{
				{Filename: "solve.py", Content: "print(42)", Language: "python"},
			},
		},
	}

	out := BuildMessages(history)
	text, ok := out[0].Content.(string)
	if !ok {
		t.Fatalf("expected string content, got %T", out[0].Content)
	}
	if !strings.Contains(text, "solve.py") {
		t.Fatalf("filename not inlined: %q", text)
	}
	if !strings.Contains(text, "```python\nprint(42)\n```") {
		t.Fatalf("fenced block missing: %q", text)
	}
}
