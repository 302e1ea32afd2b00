package domain

// PendingEntry tracks one uploaded object key through polling.
type PendingEntry struct {
	ObjectKey string          `json:"object_key"`
	Resolved  bool            `json:"resolved"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Failure   *PollFailure    `json:"failure,omitempty"`
	// LastError is the most recent transport error; the key stays pollable.
	LastError string `json:"last_error,omitempty"`
}

// State reports the entry as resolved, failed, or still pending.
func (e *PendingEntry) State() KeyState {
	switch {
	case e.Resolved:
		return KeyStateResolved
	case e.Failure != nil:
		return KeyStateFailed
	default:
		return KeyStateStillPending
	}
}

// PendingSet maps object keys to their polling state in insertion order,
// together with the attempt budget already spent on them.
//
// A PendingSet is not safe for concurrent use; the session manager hands it
// to one operation at a time.
type PendingSet struct {
	order        []string
	entries      map[string]*PendingEntry
	AttemptsUsed int
}

// NewPendingSet creates an empty PendingSet.
func NewPendingSet() *PendingSet {
	return &PendingSet{entries: make(map[string]*PendingEntry)}
}

// Add registers key as unresolved. Re-adding a known key clears its state,
// since the object was overwritten.
func (p *PendingSet) Add(key string) {
	if e, ok := p.entries[key]; ok {
		*e = PendingEntry{ObjectKey: key}
		return
	}
	p.order = append(p.order, key)
	p.entries[key] = &PendingEntry{ObjectKey: key}
}

// Len returns the number of tracked keys.
func (p *PendingSet) Len() int {
	return len(p.order)
}

// Keys returns the tracked keys in insertion order.
func (p *PendingSet) Keys() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Entry returns the entry for key.
func (p *PendingSet) Entry(key string) (*PendingEntry, bool) {
	e, ok := p.entries[key]
	return e, ok
}

// Entries returns copies of all entries in insertion order.
func (p *PendingSet) Entries() []PendingEntry {
	out := make([]PendingEntry, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, *p.entries[k])
	}
	return out
}

// Active returns the keys still eligible for automatic polling: neither
// resolved nor terminally failed.
func (p *PendingSet) Active() []string {
	var out []string
	for _, k := range p.order {
		e := p.entries[k]
		if !e.Resolved && e.Failure == nil {
			out = append(out, k)
		}
	}
	return out
}

// Resolve records a fetched result for key.
func (p *PendingSet) Resolve(key string, result *AnalysisResult) {
	if e, ok := p.entries[key]; ok {
		e.Resolved = true
		e.Result = result
		e.Failure = nil
		e.LastError = ""
	}
}

// NoteError records a retryable error for key without changing its state.
func (p *PendingSet) NoteError(key, reason string) {
	if e, ok := p.entries[key]; ok && !e.Resolved {
		e.LastError = reason
	}
}

// Fail stops automatic polling of key. The key stays unresolved.
func (p *PendingSet) Fail(key string, failure *PollFailure) {
	if e, ok := p.entries[key]; ok && !e.Resolved {
		e.Failure = failure
	}
}

// Results returns resolved results in insertion order.
func (p *PendingSet) Results() []AnalysisResult {
	var out []AnalysisResult
	for _, k := range p.order {
		e := p.entries[k]
		if e.Resolved && e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// Remaining returns the attempts left out of maxAttempts.
func (p *PendingSet) Remaining(maxAttempts int) int {
	if r := maxAttempts - p.AttemptsUsed; r > 0 {
		return r
	}
	return 0
}

// ResetAll marks every key unresolved again and clears the attempt counter.
func (p *PendingSet) ResetAll() {
	for _, k := range p.order {
		p.entries[k] = &PendingEntry{ObjectKey: k}
	}
	p.AttemptsUsed = 0
}

// Reset forgets every key, as at the start of a new upload batch.
func (p *PendingSet) Reset() {
	p.order = nil
	p.entries = make(map[string]*PendingEntry)
	p.AttemptsUsed = 0
}

// KeyOutcome is the per-key result of a polling run.
type KeyOutcome struct {
	ObjectKey string          `json:"object_key"`
	State     KeyState        `json:"state"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Failure   *PollFailure    `json:"failure,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

// PollOutcome summarizes a polling run over a PendingSet.
type PollOutcome struct {
	Keys              []KeyOutcome `json:"keys"`
	Passes            int          `json:"passes"`
	Requests          int          `json:"requests"`
	AttemptsUsed      int          `json:"attempts_used"`
	AttemptsRemaining int          `json:"attempts_remaining"`
	BudgetExhausted   bool         `json:"budget_exhausted"`
	Canceled          bool         `json:"canceled,omitempty"`
}

// Count returns how many keys ended in state s.
func (o *PollOutcome) Count(s KeyState) int {
	n := 0
	for _, k := range o.Keys {
		if k.State == s {
			n++
		}
	}
	return n
}

// Outcome snapshots the set as a PollOutcome.
func (p *PendingSet) Outcome(maxAttempts int) *PollOutcome {
	out := &PollOutcome{
		AttemptsUsed:      p.AttemptsUsed,
		AttemptsRemaining: p.Remaining(maxAttempts),
	}
	for _, k := range p.order {
		e := p.entries[k]
		out.Keys = append(out.Keys, KeyOutcome{
			ObjectKey: k,
			State:     e.State(),
			Result:    e.Result,
			Failure:   e.Failure,
			LastError: e.LastError,
		})
	}
	out.BudgetExhausted = out.AttemptsRemaining == 0 && out.Count(KeyStateStillPending) > 0
	return out
}
