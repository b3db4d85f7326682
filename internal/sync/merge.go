package sync

import (
	"github.com/matheus3301/convsync/internal/convo"
)

func (e *Engine) mergeLocked(v *view, batch []convo.Message) MergeResult {
	var res MergeResult
	oldMin, hadMin := v.minSentAt()

	for _, in := range batch {
		if in.ConversationID == "" {
			in.ConversationID = v.id
		}
		if in.Direction == convo.Inbound {
			e.mergeInbound(v, in, &res)
			continue
		}
		e.mergeOutbound(v, in, &res)
	}

	if res.Added > 0 {
		v.sort()
	}
	if newMin, ok := v.minSentAt(); ok && hadMin && newMin < oldMin {
		res.Prepended = true
	}
	res.AutoScroll = res.Added > 0 && !res.Prepended
	return res
}

// mergeInbound appends an inbound message unless its canonical id is already
// present. Inbound entries are never refined.
func (e *Engine) mergeInbound(v *view, in convo.Message, res *MergeResult) {
	in.Provisional = false
	in.Status = convo.StatusNone
	if in.ID != "" && v.indexByID(in.ID) >= 0 {
		res.Dropped++
		return
	}
	e.appendLocked(v, in)
	res.Added++
}

func (e *Engine) mergeOutbound(v *view, in convo.Message, res *MergeResult) {
	canonical := in.ID != "" && !in.Provisional
	if !canonical {
		in.Provisional = true
		if in.ID == "" {
			in.ID = NewLocalID()
		}
		if in.LocalID == "" {
			in.LocalID = in.ID
		}
	}

	idx := -1
	if canonical {
		idx = v.indexByID(in.ID)
	}
	if idx < 0 {
		idx = e.correlate(v, in)
	}
	if idx < 0 {
		if in.Status == convo.StatusNone {
			in.Status = convo.StatusPending
		}
		e.appendLocked(v, in)
		res.Added++
		return
	}

	changed := false
	if canonical {
		idx, changed = e.adoptLocked(v, idx, in.ID)
	}
	if e.advanceLocked(&v.messages[idx], in.Status) {
		changed = true
	}
	if changed {
		res.Refined++
	} else {
		res.Dropped++
	}
}

// correlate finds the entry an outbound message confirms: same direction,
// identical content and SentAt strictly inside CorrelationWindow. Optimistic
// entries are preferred; among equals the closest SentAt wins, then the
// earliest entry.
func (e *Engine) correlate(v *view, in convo.Message) int {
	window := CorrelationWindow.Milliseconds()
	canonical := in.ID != "" && !in.Provisional

	best, bestDelta, bestProvisional := -1, int64(0), false
	for i := range v.messages {
		m := &v.messages[i]
		if m.Direction != convo.Outbound || m.Content != in.Content {
			continue
		}
		delta := m.SentAt - in.SentAt
		if delta < 0 {
			delta = -delta
		}
		if delta >= window {
			continue
		}
		if !m.Provisional && canonical && m.ID != in.ID && !e.policy.MergeRapidDuplicates {
			continue
		}
		switch {
		case best < 0,
			m.Provisional && !bestProvisional,
			m.Provisional == bestProvisional && delta < bestDelta:
			best, bestDelta, bestProvisional = i, delta, m.Provisional
		}
	}
	return best
}

// adoptLocked gives the entry at idx the canonical id. Another entry already
// holding that id is folded into it. It returns the entry's index after the
// fold and whether anything changed.
func (e *Engine) adoptLocked(v *view, idx int, canonicalID string) (int, bool) {
	m := &v.messages[idx]
	if !m.Provisional && (m.ID == canonicalID || v.aliases[canonicalID] == m.ID) {
		return idx, false
	}

	if dup := v.indexByCanonical(canonicalID); dup >= 0 && dup != idx {
		status := v.messages[dup].Status
		v.messages = append(v.messages[:dup], v.messages[dup+1:]...)
		if dup < idx {
			idx--
		}
		e.advanceLocked(&v.messages[idx], status)
		m = &v.messages[idx]
	}

	// A displaced canonical id stays resolvable, so a refetch carrying it
	// again matches this entry instead of re-correlating.
	if m.HasCanonicalID() {
		v.alias(m.ID, canonicalID)
	} else {
		delete(v.aliases, canonicalID)
	}
	m.ID = canonicalID
	m.Provisional = false
	e.owner[canonicalID] = v.id
	e.claimParkedLocked(v, idx)
	return idx, true
}

func (e *Engine) appendLocked(v *view, m convo.Message) {
	v.messages = append(v.messages, m)
	if !m.HasCanonicalID() {
		return
	}
	e.owner[m.ID] = v.id
	if m.Direction == convo.Outbound {
		e.claimParkedLocked(v, len(v.messages)-1)
	}
}
