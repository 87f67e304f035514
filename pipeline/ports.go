// Package pipeline executes one user turn end to end: guard check, optimistic
// cache mutation, streaming, finalization, persistence and retitling.
package pipeline

import (
	"context"

	"github.com/lianxi-ai/tutorcore/domain"
	"github.com/lianxi-ai/tutorcore/llmclient"
)

// Completer is the narrow slice of the completion client the pipeline needs.
type Completer interface {
	Stream(ctx context.Context, req *llmclient.CompletionRequest, onChunk llmclient.ChunkHandler) (*llmclient.StreamResult, error)
	Complete(ctx context.Context, req *llmclient.CompletionRequest) (*llmclient.Reply, error)
}

// ChatStore persists conversations by id. SaveChat upserts idempotently.
type ChatStore interface {
	SaveChat(ctx context.Context, id string, messages []domain.Message, title string) (*domain.Session, error)
	DeleteChat(ctx context.Context, id string) error
	RenameChat(ctx context.Context, id, title string) error
	ListChats(ctx context.Context) ([]domain.Session, error)
}

// Recognizer extracts text from submitted images.
type Recognizer interface {
	Recognize(ctx context.Context, imageURLs []string) ([]domain.OCRResult, error)
}
