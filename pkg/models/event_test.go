package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_JSONDurationInSeconds(t *testing.T) {
	e := Event{
		ID:        3,
		Timestamp: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Data:      map[string]any{"app": "editor"},
	}
	b, err := json.Marshal(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, 1.5, raw["duration"])

	var back Event
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, e.Duration, back.Duration)
	assert.True(t, e.Timestamp.Equal(back.Timestamp))
}

func TestEvent_UnmarshalNilDataBecomesEmptyMap(t *testing.T) {
	var e Event
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"2026-01-02T10:00:00Z","duration":1}`), &e))
	assert.NotNil(t, e.Data)
	assert.Empty(t, e.Data)
}

func TestEvent_DataEqualIgnoresKeyOrder(t *testing.T) {
	a := Event{Data: map[string]any{"x": 1.0, "y": "z"}}
	b := Event{Data: map[string]any{"y": "z", "x": 1.0}}
	c := Event{Data: map[string]any{"x": 2.0, "y": "z"}}
	assert.True(t, a.DataEqual(&b))
	assert.False(t, a.DataEqual(&c))
}

func TestEvent_Endtime(t *testing.T) {
	e := Event{Timestamp: time.Unix(100, 0).UTC(), Duration: 5 * time.Second}
	assert.Equal(t, time.Unix(105, 0).UTC(), e.Endtime())
}
