package command

import "time"

// Entry is one applied command together with its inverse and the revision
// numbers on either side of it. Applying the inverse restores the document
// to exactly RevBefore, revision number included.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Command   Command   `json:"command"`
	Inverse   Command   `json:"inverse"`
	RevBefore uint64    `json:"revBefore"`
	RevAfter  uint64    `json:"revAfter"`
	AppliedAt time.Time `json:"appliedAt"`
}

// Journal is the ordered history of applied commands with an undo cursor.
// Entries at indexes [0, cursor) are applied; [cursor, len) is the redo
// tail. Only the owning engine goroutine touches it.
type Journal struct {
	entries []Entry
	cursor  int
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append records a newly applied entry, discarding any redo tail.
func (j *Journal) Append(e Entry) {
	j.entries = append(j.entries[:j.cursor], e)
	j.cursor = len(j.entries)
}

// StepBack moves the cursor over the most recent applied entry and returns
// it. Reports false at the journal start.
func (j *Journal) StepBack() (*Entry, bool) {
	if j.cursor == 0 {
		return nil, false
	}
	j.cursor--
	return &j.entries[j.cursor], true
}

// StepForward re-advances the cursor over the next redo entry and returns
// it. Reports false at the journal end.
func (j *Journal) StepForward() (*Entry, bool) {
	if j.cursor >= len(j.entries) {
		return nil, false
	}
	e := &j.entries[j.cursor]
	j.cursor++
	return e, true
}

// CanUndo reports whether an applied entry precedes the cursor.
func (j *Journal) CanUndo() bool { return j.cursor > 0 }

// CanRedo reports whether a redo tail follows the cursor.
func (j *Journal) CanRedo() bool { return j.cursor < len(j.entries) }

// Len returns the total number of recorded entries.
func (j *Journal) Len() int { return len(j.entries) }

// Cursor returns the number of currently applied entries.
func (j *Journal) Cursor() int { return j.cursor }
