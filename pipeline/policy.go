package pipeline

import (
	"strings"

	"github.com/lianxi-ai/tutorcore/domain"
)

// defaultTitle is shown for a conversation opened without any text.
const defaultTitle = "新对话"

// gradingPendingSummary is the placeholder summary while a correction streams.
const gradingPendingSummary = "批改中..."

// gradingFailedSummary replaces the pending summary when no structured result
// could be recovered; the free-form text still carries the feedback.
const gradingFailedSummary = "批改结果解析失败,请参考上方文字说明"

// deriveTitle builds the heuristic title for a brand-new conversation: the
// first 15 runes of the text, or the default for an image-only submission.
func deriveTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return defaultTitle
	}
	runes := []rune(trimmed)
	if len(runes) > 15 {
		return string(runes[:15])
	}
	return trimmed
}

// normalizeDisplayModel fixes up the model id shown on a finished reply. The
// image-capable gemini family always runs with thinking enabled, so the
// display id carries the suffix even when the request omitted it.
func normalizeDisplayModel(model string) string {
	if strings.HasPrefix(model, "gemini-") && !strings.HasSuffix(model, "-thinking") {
		return model + "-thinking"
	}
	return model
}

// upsertMessage replaces the message with the same id, or appends when the id
// is not present yet. Applies to finalized replies in both modes.
func upsertMessage(msgs []domain.Message, msg domain.Message) []domain.Message {
	for i := range msgs {
		if msgs[i].ID == msg.ID {
			msgs[i] = msg
			return msgs
		}
	}
	return append(msgs, msg)
}

// pendingGradingResult pre-populates one empty entry per submitted image so
// the UI can render the grading skeleton before any token arrives.
func pendingGradingResult(imageURLs []string) *domain.GradingResult {
	result := &domain.GradingResult{Summary: gradingPendingSummary}
	for _, url := range imageURLs {
		result.ImageResults = append(result.ImageResults, domain.ImageGradingResult{
			ImageURL: url,
			Steps:    []domain.GradingStep{},
		})
	}
	return result
}

// failedGradingResult keeps the per-image skeleton but swaps in an explanatory
// summary, so the message never stays stuck at the pending state.
func failedGradingResult(imageURLs []string) *domain.GradingResult {
	result := pendingGradingResult(imageURLs)
	result.Summary = gradingFailedSummary
	return result
}
