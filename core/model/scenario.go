package model

import "fmt"

// ScenarioSlice carries contact adjacency and capacity for the time range
// [Start, Start+Length). Rows are phones; columns are phones followed by
// targets, so target j lives in column PhoneCount+j.
type ScenarioSlice struct {
	Start       int
	Length      int
	PhoneCount  int
	TargetCount int
	// Adj[k][i][b] reports a contact between phone i and agent b at Start+k.
	Adj [][][]bool
	// Cap[k][i][b] is the amount of data the contact can carry in one step.
	Cap    [][][]float64
	Phones []CostProfile
}

// NewScenarioSlice allocates an empty slice with no contacts.
func NewScenarioSlice(start, length, phones, targets int, profiles []CostProfile) *ScenarioSlice {
	s := &ScenarioSlice{
		Start:       start,
		Length:      length,
		PhoneCount:  phones,
		TargetCount: targets,
		Phones:      profiles,
	}
	if length < 0 {
		return s
	}
	cols := phones + targets
	s.Adj = make([][][]bool, length)
	s.Cap = make([][][]float64, length)
	for k := 0; k < length; k++ {
		s.Adj[k] = make([][]bool, phones)
		s.Cap[k] = make([][]float64, phones)
		for i := 0; i < phones; i++ {
			s.Adj[k][i] = make([]bool, cols)
			s.Cap[k][i] = make([]float64, cols)
		}
	}
	return s
}

// End returns the first time step after the slice.
func (s *ScenarioSlice) End() int { return s.Start + s.Length }

// Columns returns the number of agent columns.
func (s *ScenarioSlice) Columns() int { return s.PhoneCount + s.TargetCount }

// TargetColumn returns the column index of target j.
func (s *ScenarioSlice) TargetColumn(j int) int { return s.PhoneCount + j }

// Contains reports whether absolute time t falls inside the slice.
func (s *ScenarioSlice) Contains(t int) bool { return t >= s.Start && t < s.End() }

// Adjacent reports whether phone i and agent column b are in contact at
// absolute time t. Times and indices outside the slice are never adjacent.
func (s *ScenarioSlice) Adjacent(t, i, b int) bool {
	if !s.Contains(t) || i < 0 || i >= s.PhoneCount || b < 0 || b >= s.Columns() {
		return false
	}
	return s.Adj[t-s.Start][i][b]
}

// Capacity returns the contact capacity of (i, b) at absolute time t, or 0
// when they are not adjacent.
func (s *ScenarioSlice) Capacity(t, i, b int) float64 {
	if !s.Adjacent(t, i, b) {
		return 0
	}
	return s.Cap[t-s.Start][i][b]
}

// Set records a contact of the given capacity at absolute time t.
func (s *ScenarioSlice) Set(t, i, b int, capacity float64) {
	k := t - s.Start
	s.Adj[k][i][b] = true
	s.Cap[k][i][b] = capacity
}

// Clear removes the contact of (i, b) at absolute time t.
func (s *ScenarioSlice) Clear(t, i, b int) {
	k := t - s.Start
	s.Adj[k][i][b] = false
	s.Cap[k][i][b] = 0
}

// MaskPhone removes every contact of phone i, in both directions.
func (s *ScenarioSlice) MaskPhone(i int) {
	s.MaskPhoneBefore(i, s.End())
}

// MaskPhoneBefore removes the contacts of phone i at absolute steps before t.
func (s *ScenarioSlice) MaskPhoneBefore(i, t int) {
	for k := 0; k < s.Length && s.Start+k < t; k++ {
		for b := 0; b < s.Columns(); b++ {
			s.Adj[k][i][b] = false
			s.Cap[k][i][b] = 0
		}
		for r := 0; r < s.PhoneCount; r++ {
			s.Adj[k][r][i] = false
			s.Cap[k][r][i] = 0
		}
	}
}

// Clone returns a deep copy of the slice.
func (s *ScenarioSlice) Clone() *ScenarioSlice {
	c := NewScenarioSlice(s.Start, s.Length, s.PhoneCount, s.TargetCount, append([]CostProfile(nil), s.Phones...))
	for k := 0; k < s.Length; k++ {
		for i := 0; i < s.PhoneCount; i++ {
			copy(c.Adj[k][i], s.Adj[k][i])
			copy(c.Cap[k][i], s.Cap[k][i])
		}
	}
	return c
}

// Validate checks that the tensors match the declared dimensions.
func (s *ScenarioSlice) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("slice start %d is negative", s.Start)
	}
	if s.Length <= 0 {
		return fmt.Errorf("slice length %d must be positive", s.Length)
	}
	if s.PhoneCount < 0 || s.TargetCount < 0 {
		return fmt.Errorf("negative agent count")
	}
	if len(s.Phones) != s.PhoneCount {
		return fmt.Errorf("expected %d cost profiles, got %d", s.PhoneCount, len(s.Phones))
	}
	if len(s.Adj) != s.Length || len(s.Cap) != s.Length {
		return fmt.Errorf("expected %d time steps in tensors", s.Length)
	}
	for k := 0; k < s.Length; k++ {
		if len(s.Adj[k]) != s.PhoneCount || len(s.Cap[k]) != s.PhoneCount {
			return fmt.Errorf("step %d: expected %d rows", s.Start+k, s.PhoneCount)
		}
		for i := 0; i < s.PhoneCount; i++ {
			if len(s.Adj[k][i]) != s.Columns() || len(s.Cap[k][i]) != s.Columns() {
				return fmt.Errorf("step %d row %d: expected %d columns", s.Start+k, i, s.Columns())
			}
			for b, c := range s.Cap[k][i] {
				if c < 0 {
					return fmt.Errorf("step %d: negative capacity for (%d,%d)", s.Start+k, i, b)
				}
			}
		}
	}
	return nil
}
