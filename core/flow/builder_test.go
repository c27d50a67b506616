package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/crowdsense/core/model"
)

func relaySlice(start, length int) *model.ScenarioSlice {
	profiles := []model.CostProfile{
		{SensingRate: 1, TransferRate: 1, UploadRate: 5, UploadLimit: 1},
		{SensingRate: 1, TransferRate: 1, UploadRate: 1, UploadLimit: 1},
	}
	s := model.NewScenarioSlice(start, length, 2, 1, profiles)
	if s.Contains(0) {
		s.Set(0, 0, s.TargetColumn(0), 1)
	}
	if s.Contains(1) {
		s.Set(1, 0, 1, 1)
		s.Set(1, 1, 0, 1)
	}
	return s
}

func countTypes(net *Network) map[ArcType]int {
	out := make(map[ArcType]int)
	for _, a := range net.Arcs {
		out[a.Type]++
	}
	return out
}

func TestBuild_Layout(t *testing.T) {
	b := NewBuilder(Options{Horizon: 3}, nil)
	net, err := b.Build(relaySlice(0, 3), NewCommittedState(2, 1), PinExact)
	require.NoError(t, err)

	assert.Equal(t, 9, net.NodeCount)
	assert.Equal(t, 7, net.Source)
	assert.Equal(t, 8, net.Sink)
	assert.Equal(t, 6, net.TargetNode(0))
	assert.Equal(t, 1.0, net.Supply[net.Source])
	assert.Equal(t, -1.0, net.Supply[net.Sink])

	assert.Equal(t, map[ArcType]int{
		SourceToTarget: 1,
		PhoneToSink:    2,
		TargetToPhone:  1,
		PhoneToPhone:   2,
		PhoneToSelf:    4,
	}, countTypes(net))

	// Deterministic order: source arcs, sink arcs, contacts, continuity.
	assert.Equal(t, SourceToTarget, net.Arcs[0].Type)
	assert.Equal(t, PhoneToSink, net.Arcs[1].Type)
	assert.Equal(t, 2, net.Arcs[1].Time)
	assert.Equal(t, net.PhoneNode(2, 0), net.Arcs[1].Tail)
	assert.Equal(t, TargetToPhone, net.Arcs[3].Type)
	assert.Equal(t, PhoneToPhone, net.Arcs[4].Type)
	assert.Equal(t, 2.0, net.Arcs[4].Cost, "transfer cost is the sum of both rates")
	assert.Equal(t, 1.0, net.Arcs[4].PhoneShare)
	assert.Equal(t, 1.0, net.Arcs[4].PeerShare)
	assert.Equal(t, net.PhoneNode(1, 0), net.Arcs[4].Tail)
	assert.Equal(t, net.PhoneNode(1, 1), net.Arcs[4].Head)
	last := net.Arcs[len(net.Arcs)-1]
	assert.Equal(t, PhoneToSelf, last.Type)
	assert.Equal(t, Unbounded, last.Upper)

	for _, a := range net.Arcs {
		assert.GreaterOrEqual(t, a.Lower, 0.0)
		assert.LessOrEqual(t, a.Lower, a.Upper)
	}
}

func TestBuild_SensingOnlyOnNewContact(t *testing.T) {
	profiles := []model.CostProfile{{SensingRate: 2, UploadLimit: 1, UploadRate: 1}}
	s := model.NewScenarioSlice(0, 5, 1, 1, profiles)
	for _, step := range []int{0, 1, 3, 4} {
		s.Set(step, 0, 1, 1)
	}
	net, err := NewBuilder(Options{}, nil).Build(s, NewCommittedState(1, 1), PinExact)
	require.NoError(t, err)

	var times []int
	for _, idx := range net.ArcsOf(TargetToPhone) {
		times = append(times, net.Arcs[idx].Time)
		assert.Equal(t, 2.0, net.Arcs[idx].Cost)
	}
	assert.Equal(t, []int{0, 3}, times)
}

func TestBuild_WindowStartIsNewContact(t *testing.T) {
	profiles := []model.CostProfile{{UploadLimit: 1}}
	s := model.NewScenarioSlice(2, 2, 1, 1, profiles)
	s.Set(2, 0, 1, 1)
	s.Set(3, 0, 1, 1)
	net, err := NewBuilder(Options{}, nil).Build(s, NewCommittedState(1, 1), PinExact)
	require.NoError(t, err)
	idx := net.ArcsOf(TargetToPhone)
	require.Len(t, idx, 1)
	assert.Equal(t, 2, net.Arcs[idx[0]].Time)
}

func TestBuild_CommittedOverlay(t *testing.T) {
	state := NewCommittedState(2, 1)
	require.NoError(t, state.Commit(Key{Time: 0, Phone: 0, Column: 2}, 1))

	b := NewBuilder(Options{Horizon: 3}, nil)
	net, err := b.Build(relaySlice(1, 2), state, PinExact)
	require.NoError(t, err)

	sense := net.ArcsOf(TargetToPhone)
	require.Len(t, sense, 1)
	a := net.Arcs[sense[0]]
	assert.True(t, a.Pinned)
	assert.Equal(t, 0, a.Time)
	assert.Equal(t, 1.0, a.Lower)
	assert.Equal(t, 1.0, a.Upper)

	relaxed, err := b.Build(relaySlice(1, 2), state, PinRelaxed)
	require.NoError(t, err)
	ra := relaxed.Arcs[relaxed.ArcsOf(TargetToPhone)[0]]
	assert.Equal(t, 0.0, ra.Lower)
	assert.Equal(t, 1.0, ra.Upper)
}

func TestBuild_CommittedReplacesForecast(t *testing.T) {
	state := NewCommittedState(2, 1)
	require.NoError(t, state.Commit(Key{Time: 1, Phone: 0, Column: 1}, 0.25))
	net, err := NewBuilder(Options{}, nil).Build(relaySlice(0, 3), state, PinExact)
	require.NoError(t, err)

	var forward []Arc
	for _, idx := range net.ArcsOf(PhoneToPhone) {
		if net.Arcs[idx].Phone == 0 {
			forward = append(forward, net.Arcs[idx])
		}
	}
	require.Len(t, forward, 1)
	assert.True(t, forward[0].Pinned)
	assert.Equal(t, 0.25, forward[0].Upper)
}

func TestBuild_HeldCopyIsFree(t *testing.T) {
	state := NewCommittedState(2, 1)
	require.NoError(t, state.Commit(Key{Time: 0, Phone: 0, Column: 2}, 1))
	require.NoError(t, state.Hold(Key{Time: 0, Phone: 1, Column: 2}, 0.5))

	net, err := NewBuilder(Options{}, nil).Build(relaySlice(1, 2), state, PinExact)
	require.NoError(t, err)
	var held []Arc
	for _, idx := range net.ArcsOf(TargetToPhone) {
		if net.Arcs[idx].Phone == 1 {
			held = append(held, net.Arcs[idx])
		}
	}
	require.Len(t, held, 1)
	assert.True(t, held[0].Pinned)
	assert.Zero(t, held[0].Cost)
	assert.Zero(t, held[0].PhoneShare)
	assert.Zero(t, held[0].Lower, "held copies are optional even with exact pins")
	assert.Equal(t, 0.5, held[0].Upper)
}

func TestBuild_UploadLimitLiftedByHistory(t *testing.T) {
	state := NewCommittedState(2, 1)
	state.SetCarried(1, 0.75)
	net, err := NewBuilder(Options{}, nil).Build(relaySlice(1, 2), state, PinExact)
	require.NoError(t, err)
	sinks := net.ArcsOf(PhoneToSink)
	require.Len(t, sinks, 2)
	assert.Equal(t, 1.0, net.Arcs[sinks[0]].Upper)
	assert.Equal(t, 1.75, net.Arcs[sinks[1]].Upper)
}

func TestBuild_Deferral(t *testing.T) {
	net, err := NewBuilder(Options{Deferral: true}, nil).Build(relaySlice(0, 3), NewCommittedState(2, 1), PinExact)
	require.NoError(t, err)
	idx := net.ArcsOf(Deferral)
	require.Len(t, idx, 1)
	a := net.Arcs[idx[0]]
	assert.Equal(t, net.Source, a.Tail)
	assert.Equal(t, net.Sink, a.Head)
	assert.Equal(t, DefaultDeferralPenalty, a.Cost)
}

func TestBuild_Idempotent(t *testing.T) {
	state := NewCommittedState(2, 1)
	require.NoError(t, state.Commit(Key{Time: 0, Phone: 0, Column: 2}, 1))
	b := NewBuilder(Options{Deferral: true}, nil)
	first, err := b.Build(relaySlice(1, 2), state, PinExact)
	require.NoError(t, err)
	second, err := b.Build(relaySlice(1, 2), state, PinExact)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_Errors(t *testing.T) {
	b := NewBuilder(Options{Horizon: 3}, nil)
	profiles := make([]model.CostProfile, 2)

	_, err := b.Build(model.NewScenarioSlice(0, 0, 2, 1, profiles), NewCommittedState(2, 1), PinExact)
	assert.ErrorIs(t, err, ErrMalformedWindow)

	_, err = b.Build(model.NewScenarioSlice(2, 2, 2, 1, profiles), NewCommittedState(2, 1), PinExact)
	assert.ErrorIs(t, err, ErrMalformedWindow, "window beyond horizon")

	_, err = b.Build(model.NewScenarioSlice(0, 2, 2, 1, profiles), NewCommittedState(3, 1), PinExact)
	assert.ErrorIs(t, err, ErrMalformedWindow)

	_, err = b.Build(nil, NewCommittedState(2, 1), PinExact)
	assert.ErrorIs(t, err, ErrMalformedWindow)
}
