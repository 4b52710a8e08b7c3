package trackpad

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultJSON(t *testing.T) {
	rec := ContactRecord{ID: 2, X: -10, Y: 20, Pressure: 60}
	res := Result{
		Primary:     &rec,
		Contacts:    []ContactEvent{{Type: ContactBegan, Slot: 0, Contact: rec}, {Type: ContactEnded, Slot: 3}},
		Active:      1,
		MaxPressure: 60,
		Buttons:     []ButtonEvent{{Button: ButtonMiddle, Pressed: true}},
		Haptic:      HapticButtonForce,
		State:       Forced,
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"forced"`)
	assert.Contains(t, string(data), `"haptic":"buttonForce"`)
	assert.Contains(t, string(data), `"type":"ended"`)

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, res, decoded)
}

func TestUnmarshalTextUnknown(t *testing.T) {
	var s ClickState
	assert.Error(t, s.UnmarshalText([]byte("sideways")))
	var h HapticCommand
	assert.Error(t, h.UnmarshalText([]byte("buzz")))
}
