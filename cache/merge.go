package cache

import (
	"sort"

	"github.com/lianxi-ai/tutorcore/domain"
)

// Merge reconciles a locally held (possibly fresher, still-streaming) session
// list with a remote-fetched snapshot. Neither input is modified. The result is
// sorted newest first by UpdatedAt.
func Merge(local, remote []domain.Session) []domain.Session {
	if len(local) == 0 {
		return remote
	}
	if len(remote) == 0 {
		return local
	}

	localByID := make(map[string]domain.Session, len(local))
	for _, sess := range local {
		localByID[sess.ID] = sess
	}

	merged := make([]domain.Session, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))

	for _, rs := range remote {
		seen[rs.ID] = true
		ls, ok := localByID[rs.ID]
		if !ok {
			merged = append(merged, rs)
			continue
		}
		merged = append(merged, mergeSession(ls, rs))
	}

	// Sessions the remote has not confirmed yet stay in the list.
	for _, ls := range local {
		if !seen[ls.ID] {
			merged = append(merged, ls)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})
	return merged
}

func mergeSession(local, remote domain.Session) domain.Session {
	out := remote
	if local.TitleGenerating {
		out.TitleGenerating = true
	}
	if local.UpdatedAt.After(remote.UpdatedAt) {
		out.UpdatedAt = local.UpdatedAt
	}
	out.Messages = mergeMessages(local.Messages, remote.Messages)
	return out
}

// mergeMessages unions both message lists by id, keeping remote order and
// appending local-only messages in their local order.
func mergeMessages(local, remote []domain.Message) []domain.Message {
	localByID := make(map[string]domain.Message, len(local))
	for _, msg := range local {
		localByID[msg.ID] = msg
	}

	out := make([]domain.Message, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))
	for _, rm := range remote {
		seen[rm.ID] = true
		lm, ok := localByID[rm.ID]
		if !ok {
			out = append(out, rm)
			continue
		}
		out = append(out, mergeMessage(lm, rm))
	}
	for _, lm := range local {
		if !seen[lm.ID] {
			out = append(out, lm)
		}
	}
	return out
}

// mergeMessage prefers the local variant when it is visibly fresher: a longer
// text means streaming has advanced past the persisted copy, and a grading
// result the remote lacks means extraction already ran locally.
func mergeMessage(local, remote domain.Message) domain.Message {
	if len(local.Text) > len(remote.Text) {
		return local
	}
	if local.GradingResult != nil && remote.GradingResult == nil {
		return local
	}
	return remote
}
