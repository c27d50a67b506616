package flow

import (
	"fmt"
	"sort"
)

// completeEpsilon is the tolerance under which an uploaded fraction snaps to 1.
const completeEpsilon = 1e-6

// Key identifies a contact at an absolute time step. Column follows the
// ScenarioSlice layout: phones first, then targets.
type Key struct {
	Time   int `json:"time"`
	Phone  int `json:"phone"`
	Column int `json:"column"`
}

// CommittedState is the history carried across windows. Every update except
// SetCarried is a monotone merge: volumes, held copies, credited uploads and
// uploaded fractions never decrease and flags are never cleared.
type CommittedState struct {
	phones   int
	targets  int
	volume   map[Key]float64
	held     map[Key]float64
	uploaded []float64
	received [][]bool
	sensed   []float64
	credited [][]float64
	carried  []float64
}

// NewCommittedState returns an empty state for n phones and m targets.
func NewCommittedState(phones, targets int) *CommittedState {
	s := &CommittedState{
		phones:   phones,
		targets:  targets,
		volume:   make(map[Key]float64),
		held:     make(map[Key]float64),
		uploaded: make([]float64, targets),
		received: make([][]bool, phones),
		sensed:   make([]float64, targets),
		credited: make([][]float64, phones),
		carried:  make([]float64, phones),
	}
	for i := range s.received {
		s.received[i] = make([]bool, targets)
		s.credited[i] = make([]float64, targets)
	}
	return s
}

// Phones returns the number of phones tracked.
func (s *CommittedState) Phones() int { return s.phones }

// Targets returns the number of targets tracked.
func (s *CommittedState) Targets() int { return s.targets }

// Commit records volume v for key k, keeping the larger of the old and new
// value. Sensing keys also add to the target's pinned sensing volume.
func (s *CommittedState) Commit(k Key, v float64) error {
	if err := s.checkKey(k); err != nil {
		return fmt.Errorf("commit %w", err)
	}
	if v <= 0 {
		return nil
	}
	old := s.volume[k]
	if v <= old {
		return nil
	}
	s.volume[k] = v
	if k.Column >= s.phones {
		s.sensed[k.Column-s.phones] += v - old
	}
	return nil
}

func (s *CommittedState) checkKey(k Key) error {
	if k.Phone < 0 || k.Phone >= s.phones || k.Column < 0 || k.Column >= s.phones+s.targets || k.Time < 0 {
		return fmt.Errorf("key %+v out of range", k)
	}
	return nil
}

// Volume returns the committed volume for k, or 0.
func (s *CommittedState) Volume(k Key) float64 { return s.volume[k] }

// Hold records a sensing copy of volume v at k that was executed and paid
// for but is not reproduced as pinned flow, because the target's pinned
// sensing already carries its full demand. Held copies are offered to later
// windows as optional free arcs. Only sensing keys can be held.
func (s *CommittedState) Hold(k Key, v float64) error {
	if err := s.checkKey(k); err != nil {
		return fmt.Errorf("hold %w", err)
	}
	if k.Column < s.phones {
		return fmt.Errorf("hold key %+v is not a sensing contact", k)
	}
	if v > s.held[k] {
		s.held[k] = v
	}
	return nil
}

// Held returns the held copy volume for k, or 0.
func (s *CommittedState) Held(k Key) float64 { return s.held[k] }

// Keys returns every committed key ordered by time, phone and column.
func (s *CommittedState) Keys() []Key {
	keys := make([]Key, 0, len(s.volume))
	for k := range s.volume {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Phone != b.Phone {
			return a.Phone < b.Phone
		}
		return a.Column < b.Column
	})
	return keys
}

// Uploaded returns the cumulative uploaded fraction of target j.
func (s *CommittedState) Uploaded(j int) float64 { return s.uploaded[j] }

// RaiseUploaded merges fraction f into target j and returns the increase.
func (s *CommittedState) RaiseUploaded(j int, f float64) float64 {
	if f >= 1-completeEpsilon {
		f = 1
	}
	if f > 1 {
		f = 1
	}
	old := s.uploaded[j]
	if f <= old {
		return 0
	}
	s.uploaded[j] = f
	return f - old
}

// Complete reports whether target j has been fully uploaded.
func (s *CommittedState) Complete(j int) bool { return s.uploaded[j] >= 1 }

// AllComplete reports whether every target has been fully uploaded.
func (s *CommittedState) AllComplete() bool {
	for j := range s.uploaded {
		if !s.Complete(j) {
			return false
		}
	}
	return true
}

// Received reports whether phone i already sensed target j.
func (s *CommittedState) Received(i, j int) bool { return s.received[i][j] }

// MarkReceived flags that phone i sensed target j.
func (s *CommittedState) MarkReceived(i, j int) { s.received[i][j] = true }

// PinnedSensing returns the total sensing volume of target j reproduced as
// flow in later windows.
func (s *CommittedState) PinnedSensing(j int) float64 { return s.sensed[j] }

// Credit merges v as the volume of target j uploaded through phone i and
// returns the increase over the largest volume credited before.
func (s *CommittedState) Credit(i, j int, v float64) float64 {
	old := s.credited[i][j]
	if v <= old {
		return 0
	}
	s.credited[i][j] = v
	return v - old
}

// Credited returns the largest volume of target j uploaded through phone i.
func (s *CommittedState) Credited(i, j int) float64 { return s.credited[i][j] }

// SetCarried replaces the volume of history that reaches the sink through
// phone i. Pinned history flows to the sink again in every later window, so
// the builder lifts the phone's upload bound by this amount.
func (s *CommittedState) SetCarried(i int, v float64) {
	if v < 0 {
		v = 0
	}
	s.carried[i] = v
}

// Carried returns the history volume uploaded through phone i.
func (s *CommittedState) Carried(i int) float64 { return s.carried[i] }

// Clone returns a deep copy.
func (s *CommittedState) Clone() *CommittedState {
	c := NewCommittedState(s.phones, s.targets)
	for k, v := range s.volume {
		c.volume[k] = v
	}
	for k, v := range s.held {
		c.held[k] = v
	}
	copy(c.uploaded, s.uploaded)
	copy(c.sensed, s.sensed)
	copy(c.carried, s.carried)
	for i := range s.received {
		copy(c.received[i], s.received[i])
		copy(c.credited[i], s.credited[i])
	}
	return c
}
