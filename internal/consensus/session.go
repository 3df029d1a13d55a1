package consensus

import (
	"slices"
	"time"
)

// Session is the per-claim vote container. The session id is the claim id.
// Votes are keyed by model id; a later vote from the same model overwrites
// the earlier one. Once sealed, the session refuses further votes but the
// final snapshot stays readable.
type Session struct {
	ID        string          `json:"id"`
	Domain    string          `json:"domain"`
	Votes     map[string]Vote `json:"votes"`
	Snapshot  Snapshot        `json:"snapshot"`
	Sealed    bool            `json:"sealed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewSession creates an open session with no votes.
func NewSession(id, domain string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Domain:    domain,
		Votes:     make(map[string]Vote),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// VoteList returns the session's votes ordered by model id for
// deterministic snapshot computation.
func (s *Session) VoteList() []Vote {
	ids := make([]string, 0, len(s.Votes))
	for id := range s.Votes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	votes := make([]Vote, 0, len(ids))
	for _, id := range ids {
		votes = append(votes, s.Votes[id])
	}
	return votes
}

// upsert records a vote, preserving monotonic timestamps on overwrite.
func (s *Session) upsert(v Vote) {
	if prev, ok := s.Votes[v.ModelID]; ok && v.ReceivedAt.Before(prev.ReceivedAt) {
		v.ReceivedAt = prev.ReceivedAt
	}
	s.Votes[v.ModelID] = v
	s.UpdatedAt = time.Now().UTC()
}
