package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to RequestStatus
		want     bool
	}{
		{RequestStatusPending, RequestStatusRunning, true},
		{RequestStatusPending, RequestStatusFailed, true},
		{RequestStatusPending, RequestStatusDone, false},
		{RequestStatusRunning, RequestStatusDone, true},
		{RequestStatusRunning, RequestStatusFailed, true},
		{RequestStatusDone, RequestStatusRunning, false},
		{RequestStatusFailed, RequestStatusDone, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, RequestStatusDone.Terminal())
	assert.True(t, RequestStatusFailed.Terminal())
	assert.False(t, RequestStatusRunning.Terminal())
}

func TestInput_ResolveMode(t *testing.T) {
	assert.Equal(t, ModeAddress, Input{}.ResolveMode())
	assert.Equal(t, ModeParcelScan, Input{ImageRefs: []string{"a.jpg"}}.ResolveMode())
	assert.Equal(t, ModeAddress, Input{ImageRefs: []string{"a.jpg"}, Mode: ModeAddress}.ResolveMode())
	assert.Equal(t, ModeParcelScan, Input{Mode: ModeParcelScan}.ResolveMode())
	assert.False(t, Mode("satellite").Valid())
}

func TestRange_ContainsAndDeviation(t *testing.T) {
	r := Range{Min: 100, Max: 200}

	assert.True(t, r.Contains(150, 0))
	assert.True(t, r.Contains(86, 0.15))
	assert.False(t, r.Contains(84, 0.15))
	assert.True(t, r.Contains(229, 0.15))
	assert.False(t, r.Contains(231, 0.15))

	assert.Zero(t, r.Deviation(150))
	assert.InDelta(t, 0.5, r.Deviation(50), 1e-9)
	assert.InDelta(t, 0.25, r.Deviation(250), 1e-9)

	open := Range{Min: 100}
	assert.True(t, open.Contains(1e9, 0))
	assert.True(t, Range{}.Empty())
}

func TestPoolState(t *testing.T) {
	assert.True(t, PoolRound.Shaped())
	assert.False(t, PoolNone.Shaped())
	assert.True(t, PoolNone.Declared())
	assert.False(t, PoolUnknown.Declared())
	assert.False(t, PoolState("").Declared())
}

func TestUserHints_TypologyFields(t *testing.T) {
	yes := true
	h := UserHints{PropertyType: "maison", Mitoyennete: &yes}
	assert.Equal(t, 2, h.TypologyFields())
	h.ConstructionPeriod = "1970s"
	assert.Equal(t, 3, h.TypologyFields())
}

func TestDescriptor_LocationQuery(t *testing.T) {
	assert.Equal(t, "33000 Bordeaux", Descriptor{City: "Bordeaux", PostalCode: "33000"}.LocationQuery())
	assert.Equal(t, "Bordeaux", Descriptor{City: " Bordeaux "}.LocationQuery())
	assert.Empty(t, Descriptor{}.LocationQuery())
}

func TestOutcome_JSONFieldNames(t *testing.T) {
	d := 12.5
	out := Outcome{
		RequestID:           "r1",
		Status:              OutcomeLowConfidence,
		Mode:                ModeAddress,
		FallbackSuggestions: &FallbackSuggestions{ExpandRadius: true, DVFDensity: &d},
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "low-confidence", raw["status"])
	assert.Contains(t, raw, "bestCandidate")
	fs := raw["fallbackSuggestions"].(map[string]any)
	assert.Equal(t, true, fs["expandRadius"])
	assert.InDelta(t, 12.5, fs["dvfDensity"], 1e-9)
}
