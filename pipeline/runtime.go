package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lianxi-ai/tutorcore/cache"
	"github.com/lianxi-ai/tutorcore/domain"
	"github.com/lianxi-ai/tutorcore/grading"
	"github.com/lianxi-ai/tutorcore/llmclient"
)

// SubmitInput is one user submission.
type SubmitInput struct {
	Text            string                  `json:"text"`
	ImageURLs       []string                `json:"image_urls,omitempty"`
	FileAttachments []domain.FileAttachment `json:"file_attachments,omitempty"`
	Mode            domain.ChatMode         `json:"mode"`
	Model           string                  `json:"model"`

	// OnChunk, when set, observes every stream frame in arrival order, after
	// the cache has been updated. Not part of the wire payload.
	OnChunk llmclient.ChunkHandler `json:"-"`
}

func (in SubmitInput) empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.ImageURLs) == 0 && len(in.FileAttachments) == 0
}

// Runtime drives one user turn end to end against the injected ports. It owns
// the concurrency guard and the current-session pointer.
type Runtime struct {
	cache  *cache.Store
	llm    Completer
	chats  ChatStore
	ocr    Recognizer
	guard  *Guard
	logger *slog.Logger
	tracer trace.Tracer

	mu        sync.Mutex
	currentID string

	defaultModel string

	now   func() time.Time
	newID func(prefix string) string
}

// New creates a runtime around the given ports.
func New(store *cache.Store, llm Completer, chats ChatStore, ocr Recognizer, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cache:  store,
		llm:    llm,
		chats:  chats,
		ocr:    ocr,
		guard:  NewGuard(),
		logger: logger,
		tracer: otel.Tracer("tutorcore/pipeline"),
		now:    time.Now,
		newID: func(prefix string) string {
			return prefix + "_" + uuid.New().String()[:8]
		},
	}
}

// Guard exposes the runtime's guard, mainly for the HTTP surface to report
// typing state.
func (r *Runtime) Guard() *Guard { return r.guard }

// SetDefaultModel sets the model applied to submissions that do not name one.
func (r *Runtime) SetDefaultModel(model string) { r.defaultModel = model }

// Sessions returns the current cache snapshot.
func (r *Runtime) Sessions() []domain.Session { return r.cache.Snapshot() }

// CurrentSession returns the id of the selected session, empty for a new chat.
func (r *Runtime) CurrentSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// SelectSession switches the current-session pointer.
func (r *Runtime) SelectSession(id string) {
	r.mu.Lock()
	r.currentID = id
	r.mu.Unlock()
}

// NewChat clears the current-session pointer so the next submission opens a
// fresh conversation.
func (r *Runtime) NewChat() { r.SelectSession("") }

// Submit executes one user turn. Empty submissions and guard denials are
// dropped silently; generation failures roll back a never-persisted new
// conversation and are returned to the caller.
func (r *Runtime) Submit(ctx context.Context, input SubmitInput) error {
	if input.empty() {
		r.logger.Debug("dropping empty submission")
		return nil
	}

	if input.Model == "" {
		input.Model = r.defaultModel
	}

	sessionID := r.CurrentSession()
	isNew := sessionID == ""
	if !r.guard.TryAcquire(sessionID, isNew) {
		r.logger.Debug("submission rejected, generation already in flight",
			"session_id", sessionID, "new_chat", isNew)
		return nil
	}
	// sessionID is reassigned below for a new conversation; the closure sees
	// the synthesized id.
	defer func() {
		r.guard.ClearCancel(sessionID)
		r.guard.SetTyping(sessionID, false)
		r.guard.ResetSubmission(sessionID)
		if isNew {
			r.guard.ClearNewChatSubmitting()
		}
	}()

	ctx, span := r.tracer.Start(ctx, "pipeline.Submit",
		trace.WithAttributes(
			attribute.String("chat.mode", string(input.Mode)),
			attribute.String("chat.model", input.Model),
			attribute.Bool("chat.new", isNew),
		))
	defer span.End()

	userMsg := domain.Message{
		ID:              r.newID("msg"),
		Role:            domain.RoleUser,
		Type:            domain.MessageTypeText,
		Text:            input.Text,
		Mode:            input.Mode,
		ImageURLs:       input.ImageURLs,
		FileAttachments: input.FileAttachments,
		CreatedAt:       r.now(),
	}

	if isNew {
		sessionID = r.newID("chat")
		// Claim the session slot before the id becomes visible through
		// SelectSession, so a concurrent submit cannot slip in.
		r.guard.MarkSubmitting(sessionID, false)
		r.cache.Prepend(domain.Session{
			ID:              sessionID,
			Title:           deriveTitle(input.Text),
			Messages:        []domain.Message{userMsg},
			TitleGenerating: true,
		})
		r.SelectSession(sessionID)
	} else {
		r.cache.UpdateMessages(sessionID, func(msgs []domain.Message) []domain.Message {
			return append(msgs, userMsg)
		})
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	r.guard.SetTyping(sessionID, true)
	r.guard.RegisterCancel(sessionID, cancelStream)

	var final domain.Message
	var err error
	if input.Mode == domain.ModeCorrect {
		final, err = r.runCorrect(streamCtx, sessionID, input)
	} else {
		final, err = r.runStudy(streamCtx, sessionID, input)
	}
	if err != nil {
		r.logger.Error("generation failed", "session_id", sessionID, "error", err)
		if isNew {
			// Never persisted: drop the optimistic conversation entirely.
			r.cache.Remove(sessionID)
			r.SelectSession("")
		}
		return err
	}

	r.cache.UpdateMessages(sessionID, func(msgs []domain.Message) []domain.Message {
		return upsertMessage(msgs, final)
	})

	sess, ok := r.cache.Get(sessionID)
	if !ok {
		return nil
	}
	if _, err := r.chats.SaveChat(ctx, sessionID, sess.Messages, sess.Title); err != nil {
		// The reply is already on screen; a save failure must not take it back.
		r.logger.Warn("failed to persist session", "session_id", sessionID, "error", err)
	}

	if isNew {
		r.generateTitle(ctx, sessionID, input.Model)
	}
	return nil
}

// StopGeneration cancels the active stream of the current session. The
// transport resolves with the partial text, so the turn completes normally.
func (r *Runtime) StopGeneration() {
	sessionID := r.CurrentSession()
	if sessionID == "" {
		return
	}
	if r.guard.Cancel(sessionID) {
		r.guard.SetTyping(sessionID, false)
	}
}

// Refresh fetches the remote session list and reconciles it with whatever the
// cache currently holds, including still-streaming local state.
func (r *Runtime) Refresh(ctx context.Context) error {
	remote, err := r.chats.ListChats(ctx)
	if err != nil {
		return err
	}
	r.cache.Replace(cache.Merge(r.cache.Snapshot(), remote))
	return nil
}

// DeleteSession removes a session locally and remotely.
func (r *Runtime) DeleteSession(ctx context.Context, id string) error {
	r.cache.Remove(id)
	if r.CurrentSession() == id {
		r.SelectSession("")
	}
	return r.chats.DeleteChat(ctx, id)
}

// RenameSession applies a user-chosen title locally and remotely.
func (r *Runtime) RenameSession(ctx context.Context, id, title string) error {
	r.cache.SetTitle(id, title)
	return r.chats.RenameChat(ctx, id, title)
}

// runStudy streams an open-ended tutoring reply into a text placeholder.
func (r *Runtime) runStudy(ctx context.Context, sessionID string, input SubmitInput) (domain.Message, error) {
	history := r.history(sessionID)

	placeholder := domain.Message{
		ID:        r.newID("msg"),
		Role:      domain.RoleAssistant,
		Type:      domain.MessageTypeText,
		Mode:      domain.ModeStudy,
		Model:     input.Model,
		CreatedAt: r.now(),
	}
	r.appendMessage(sessionID, placeholder)

	result, err := r.stream(ctx, sessionID, placeholder.ID, history, input)
	if err != nil {
		return domain.Message{}, err
	}

	final := placeholder
	final.Text = result.Text
	final.Reasoning = result.Reasoning
	final.Model = normalizeDisplayModel(input.Model)
	return final, nil
}

// runCorrect streams a grading reply into a grading placeholder, requesting
// OCR first (best effort) and extracting the structured result afterwards.
func (r *Runtime) runCorrect(ctx context.Context, sessionID string, input SubmitInput) (domain.Message, error) {
	history := r.history(sessionID)

	placeholder := domain.Message{
		ID:            r.newID("msg"),
		Role:          domain.RoleAssistant,
		Type:          domain.MessageTypeGrading,
		Mode:          domain.ModeCorrect,
		Model:         input.Model,
		GradingResult: pendingGradingResult(input.ImageURLs),
		CreatedAt:     r.now(),
	}
	r.appendMessage(sessionID, placeholder)

	var ocrText string
	if len(input.ImageURLs) > 0 {
		results, err := r.ocr.Recognize(ctx, input.ImageURLs)
		if err != nil {
			// OCR is advisory; the turn continues without it.
			r.logger.Warn("ocr request failed", "session_id", sessionID, "error", err)
		} else {
			texts := make([]string, 0, len(results))
			for _, res := range results {
				if res.Text != "" {
					texts = append(texts, res.Text)
				}
			}
			ocrText = strings.Join(texts, "\n")
		}
	}

	result, err := r.stream(ctx, sessionID, placeholder.ID, history, input)
	if err != nil {
		// Leave an explanatory summary behind so the message is not stuck
		// at the pending state if the session survives the rollback.
		r.cache.UpdateMessages(sessionID, func(msgs []domain.Message) []domain.Message {
			for i := range msgs {
				if msgs[i].ID == placeholder.ID {
					msgs[i].GradingResult = failedGradingResult(input.ImageURLs)
				}
			}
			return msgs
		})
		return domain.Message{}, err
	}

	gradingResult, ok := grading.Parse(result.Text, input.ImageURLs)
	if !ok {
		gradingResult = failedGradingResult(input.ImageURLs)
	}

	final := placeholder
	final.Text = result.Text
	final.Reasoning = result.Reasoning
	final.GradingResult = gradingResult
	final.OCRText = ocrText
	return final, nil
}

// stream runs the completion call, overwriting the placeholder's text and
// reasoning in place as each frame arrives.
func (r *Runtime) stream(ctx context.Context, sessionID, placeholderID string, history []llmclient.WireMessage, input SubmitInput) (*llmclient.StreamResult, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.stream")
	defer span.End()

	var text, reasoning strings.Builder
	req := &llmclient.CompletionRequest{
		Messages:         history,
		Model:            input.Model,
		EnableThinking:   true,
		IncludeReasoning: true,
	}

	return r.llm.Stream(ctx, req, func(frame llmclient.StreamFrame) {
		switch frame.Type {
		case "reasoning":
			reasoning.WriteString(frame.Content)
		default:
			text.WriteString(frame.Content)
		}
		curText, curReasoning := text.String(), reasoning.String()
		r.cache.UpdateMessages(sessionID, func(msgs []domain.Message) []domain.Message {
			for i := range msgs {
				if msgs[i].ID == placeholderID {
					msgs[i].Text = curText
					msgs[i].Reasoning = curReasoning
				}
			}
			return msgs
		})
		if input.OnChunk != nil {
			input.OnChunk(frame)
		}
	})
}

// history maps the session's messages to the wire payload, excluding the
// placeholder by being taken before the placeholder is appended.
func (r *Runtime) history(sessionID string) []llmclient.WireMessage {
	sess, ok := r.cache.Get(sessionID)
	if !ok {
		return nil
	}
	return llmclient.BuildMessages(sess.Messages)
}

func (r *Runtime) appendMessage(sessionID string, msg domain.Message) {
	r.cache.UpdateMessages(sessionID, func(msgs []domain.Message) []domain.Message {
		return append(msgs, msg)
	})
}

// generateTitle asks the title backend for a proper title after the first
// reply of a new conversation. Best effort: any failure keeps the heuristic
// title, and the generating flag is cleared no matter what.
func (r *Runtime) generateTitle(ctx context.Context, sessionID, model string) {
	r.cache.SetTitleGenerating(sessionID, true)
	defer r.cache.SetTitleGenerating(sessionID, false)

	sess, ok := r.cache.Get(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return
	}

	prompt := "请为以下对话生成一个5到30字的简短标题,直接返回标题本身:\n" + sess.Messages[0].Text
	reply, err := r.llm.Complete(ctx, &llmclient.CompletionRequest{
		Messages: []llmclient.WireMessage{{Role: string(domain.RoleUser), Content: prompt}},
		Model:    model,
	})
	if err != nil {
		r.logger.Warn("title generation failed", "session_id", sessionID, "error", err)
		return
	}
	title := strings.TrimSpace(reply.Reply)
	if title == "" {
		return
	}

	r.cache.SetTitle(sessionID, title)
	sess, ok = r.cache.Get(sessionID)
	if !ok {
		return
	}
	if _, err := r.chats.SaveChat(ctx, sessionID, sess.Messages, title); err != nil {
		r.logger.Warn("failed to persist generated title", "session_id", sessionID, "error", err)
	}
}
