package results

import "github.com/ignite/phishsim-monitor/internal/domain"

// ChangeSet describes which recipient records differ between the previous
// and the current snapshot, keyed by result id. Order follows the order of
// the applied snapshot so downstream processing stays deterministic.
type ChangeSet struct {
	New     []string
	Changed []string
}

// Empty reports whether the change set carries no work.
func (cs ChangeSet) Empty() bool {
	return len(cs.New) == 0 && len(cs.Changed) == 0
}

// SnapshotStore holds the latest fetched snapshot for one campaign along
// with the previous one, and diffs them on apply. The store is owned by a
// single reconciliation task and is not safe for concurrent use; the
// Engine serializes access.
type SnapshotStore struct {
	current  *domain.Campaign
	previous *domain.Campaign
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Apply replaces the current snapshot and returns the recipients whose
// records changed value relative to the previous one. The upstream API has
// no delta endpoint, so snap must always be a full snapshot.
//
// Apply is idempotent: applying an identical snapshot twice yields an
// empty ChangeSet the second time. The first apply reports every recipient
// as new.
func (s *SnapshotStore) Apply(snap *domain.Campaign) ChangeSet {
	var cs ChangeSet

	prev := make(map[string]domain.Result)
	if s.current != nil {
		for _, r := range s.current.Results {
			prev[r.ID] = r
		}
	}

	for _, r := range snap.Results {
		old, ok := prev[r.ID]
		switch {
		case !ok:
			cs.New = append(cs.New, r.ID)
		case resultChanged(old, r):
			cs.Changed = append(cs.Changed, r.ID)
		}
	}

	s.previous = s.current
	s.current = snap
	return cs
}

// Current returns the latest applied snapshot, or nil before the first
// apply.
func (s *SnapshotStore) Current() *domain.Campaign {
	return s.current
}

// resultChanged compares the mutable columns of a recipient record. Name,
// email and position are immutable server-side, so only status, the
// reported flag and the send date participate in the diff.
func resultChanged(old, cur domain.Result) bool {
	return old.Status != cur.Status ||
		old.Reported != cur.Reported ||
		!old.SendDate.Equal(cur.SendDate)
}
