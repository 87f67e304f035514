package cache

import (
	"testing"
	"time"

	"github.com/lianxi-ai/tutorcore/domain"
)

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestMergeEmptySides(t *testing.T) {
	remote := []domain.Session{{ID: "c1", UpdatedAt: ts(1)}}
	local := []domain.Session{{ID: "c2", UpdatedAt: ts(2)}}

	if got := Merge(nil, remote); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("Merge(nil, R) != R: %+v", got)
	}
	if got := Merge(local, nil); len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("Merge(L, nil) != L: %+v", got)
	}
}

func TestMergeUnionNeverDropsMessages(t *testing.T) {
	local := []domain.Session{{
		ID:        "c1",
		UpdatedAt: ts(5),
		Messages: []domain.Message{
			{ID: "m1", Text: "question"},
			{ID: "m3", Text: "streaming local only"},
		},
	}}
	remote := []domain.Session{{
		ID:        "c1",
		UpdatedAt: ts(3),
		Messages: []domain.Message{
			{ID: "m1", Text: "question"},
			{ID: "m2", Text: "persisted reply"},
		},
	}}

	got := Merge(local, remote)
	if len(got) != 1 {
		t.Fatalf("expected 1 session, got %d", len(got))
	}
	ids := map[string]bool{}
	for _, m := range got[0].Messages {
		ids[m.ID] = true
	}
	for _, want := range []string{"m1", "m2", "m3"} {
		if !ids[want] {
			t.Fatalf("message %s dropped: %+v", want, got[0].Messages)
		}
	}
}

func TestMergePrefersLongerLocalText(t *testing.T) {
	local := []domain.Session{{
		ID:        "c1",
		UpdatedAt: ts(2),
		Messages:  []domain.Message{{ID: "m1", Text: "partial answer that streamed further"}},
	}}
	remote := []domain.Session{{
		ID:        "c1",
		UpdatedAt: ts(1),
		Messages:  []domain.Message{{ID: "m1", Text: "partial"}},
	}}

	got := Merge(local, remote)
	if got[0].Messages[0].Text != "partial answer that streamed further" {
		t.Fatalf("expected local text kept, got %q", got[0].Messages[0].Text)
	}
}

func TestMergePrefersLocalGradingResult(t *testing.T) {
	gr := &domain.GradingResult{Summary: "done"}
	local := []domain.Session{{
		ID:        "c1",
		UpdatedAt: ts(1),
		Messages:  []domain.Message{{ID: "m1", Text: "x", GradingResult: gr}},
	}}
	remote := []domain.Session{{
		ID:        "c1",
		UpdatedAt: ts(2),
		Messages:  []domain.Message{{ID: "m1", Text: "x"}},
	}}

	got := Merge(local, remote)
	if got[0].Messages[0].GradingResult == nil {
		t.Fatalf("local grading result lost")
	}
}

func TestMergeSessionMetadata(t *testing.T) {
	local := []domain.Session{
		{ID: "c1", Title: "local", UpdatedAt: ts(9), TitleGenerating: true},
		{ID: "c9", Title: "unconfirmed", UpdatedAt: ts(4)},
	}
	remote := []domain.Session{
		{ID: "c1", Title: "remote", UpdatedAt: ts(2)},
		{ID: "c2", Title: "remote only", UpdatedAt: ts(7)},
	}

	got := Merge(local, remote)
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(got))
	}
	// Sorted newest first by UpdatedAt: c1 (max(9,2)), c2 (7), c9 (4).
	if got[0].ID != "c1" || got[1].ID != "c2" || got[2].ID != "c9" {
		t.Fatalf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Title != "remote" {
		t.Fatalf("expected remote fields layered over local, got title %q", got[0].Title)
	}
	if !got[0].TitleGenerating {
		t.Fatalf("local TitleGenerating flag lost")
	}
	if !got[0].UpdatedAt.Equal(ts(9)) {
		t.Fatalf("expected max UpdatedAt, got %v", got[0].UpdatedAt)
	}
}
