package llmclient

import (
	"fmt"
	"strings"

	"github.com/lianxi-ai/tutorcore/domain"
)

// WireMessage is one outbound {role, content} message. Content is a plain
// string, or a part list when a user turn carries images.
type WireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multi-part message content.
type ContentPart struct {
	Type     string    `json:"type"` // text or image_url
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef wraps an inline image reference.
type ImageRef struct {
	URL string `json:"url"`
}

// BuildMessages maps ordered history to the provider payload. File attachments
// are inlined into the text as fenced blocks; image URLs become image_url parts
// after the text part.
func BuildMessages(history []domain.Message) []WireMessage {
	out := make([]WireMessage, 0, len(history))
	for _, msg := range history {
		text := msg.Text
		if len(msg.FileAttachments) > 0 {
			text = inlineAttachments(text, msg.FileAttachments)
		}

		if msg.Role == domain.RoleUser && len(msg.ImageURLs) > 0 {
			parts := make([]ContentPart, 0, len(msg.ImageURLs)+1)
			parts = append(parts, ContentPart{Type: "text", Text: text})
			for _, url := range msg.ImageURLs {
				parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageRef{URL: url}})
			}
			out = append(out, WireMessage{Role: string(msg.Role), Content: parts})
			continue
		}

		out = append(out, WireMessage{Role: string(msg.Role), Content: text})
	}
	return out
}

func inlineAttachments(text string, files []domain.FileAttachment) string {
	var b strings.Builder
	b.WriteString(text)
	for _, f := range files {
		b.WriteString(fmt.Sprintf("\n\n%s:\n```%s\n%s\n```", f.Filename, f.Language, f.Content))
	}
	return b.String()
}
