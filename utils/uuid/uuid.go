// Package uuid generates identifiers. The engine uses it to mint work
// item IDs for items that arrive without one.
package uuid

import "github.com/google/uuid"

// IDers generate identifiers.
type IDer interface {
	ID() string
}

// UUID generates random UUID identifiers.
type UUID struct{}

func NewUUID() *UUID {
	return &UUID{}
}

// ID returns a new random UUID.
func (u *UUID) ID() string {
	return uuid.NewString()
}

// StaticIDs cycles through a fixed list of IDs. Tests use it for
// deterministic work item IDs.
type StaticIDs struct {
	ids []string
	i   int
}

func NewStaticIDs(ids ...string) *StaticIDs {
	return &StaticIDs{ids: ids}
}

// ID returns the next ID, wrapping around at the end of the list.
func (s *StaticIDs) ID() string {
	id := s.ids[s.i%len(s.ids)]
	s.i++
	return id
}
