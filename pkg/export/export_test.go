package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/crowdsense/core/model"
)

func results() []*model.RunResult {
	return []*model.RunResult{
		{
			RunID: "r1", Algorithm: "rolling", Outcome: model.OutcomeSuccess, Optimal: true, Windows: 3, FinalTime: 3,
			PhoneCosts: []model.Cost{{Sensing: 1, Communication: 1}, {Communication: 1, Upload: 1}},
			TotalCost:  4, MaxCost: 2, Delivered: []bool{true},
			Actions: []model.Action{{Time: 0, Kind: model.ActionSense, Phone: 0, Peer: -1, Target: 0, Volume: 1, Cost: 1}},
		},
		{
			RunID: "r2", Algorithm: "greedy", Outcome: model.OutcomeInfeasible, Windows: 3, FinalTime: 3,
			PhoneCosts: []model.Cost{{Sensing: 0.5}}, TotalCost: 0.5, MaxCost: 0.5, Delivered: []bool{false},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, results()))
	var got []*model.RunResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, model.OutcomeInfeasible, got[1].Outcome)
	assert.Equal(t, model.ActionSense, got[0].Actions[0].Kind)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "run_id,algorithm,phone,sensing,communication,upload,total", lines[0])
	assert.Equal(t, "r1,rolling,1,0,1,1,2", lines[2])
	assert.Equal(t, "r2,greedy,0,0.5,0,0,0.5", lines[3])
}

func TestWriteActionsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteActionsCSV(&buf, results()[0]))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0,sense,0,-1,0,1,1", lines[1])
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, results()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "r1,rolling,success,true,3,3,1,1,4,0,2,0", lines[1])
	assert.Equal(t, "r2,greedy,infeasible,false,3,3,0,1,0.5,0,0.5,0", lines[2])
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, results()))
	html := buf.String()
	assert.Contains(t, html, "Algorithm comparison")
	assert.Contains(t, html, "rolling per-phone cost")
	assert.Contains(t, html, "greedy per-phone cost")
}
