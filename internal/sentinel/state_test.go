package sentinel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlags_State(t *testing.T) {
	testCases := []struct {
		name  string
		flags Flags
		want  State
	}{
		{"なし", Flags{}, StateActive},
		{"録画", Flags{Recording: true}, StateRecording},
		{"停止", Flags{Sleeping: true}, StateSleeping},
		{"停止は録画より優先", Flags{Sleeping: true, Recording: true}, StateSleeping},
		{"削除要求は状態に影響しない", Flags{DeleteRequested: true}, StateActive},
		{"削除要求と録画", Flags{DeleteRequested: true, Recording: true}, StateRecording},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.flags.State())
		})
	}
}

// 任意のセンチネル操作列の後、状態は現在の存在状況だけで決まる
func TestCurrentState_PureFunctionOfSentinels(t *testing.T) {
	s := NewMemoryStore()
	ops := []struct {
		sn  Sentinel
		set bool
	}{
		{Record, true}, {Sleep, true}, {Record, false}, {Sleep, false},
		{Record, true}, {DeleteRecords, true}, {Sleep, true}, {Sleep, true},
		{DeleteRecords, false}, {Sleep, false}, {Record, false}, {Record, false},
	}

	for i, op := range ops {
		if op.set {
			require.NoError(t, s.Set(op.sn))
		} else {
			require.NoError(t, s.Clear(op.sn))
		}

		want := StateActive
		if s.Exists(Sleep) {
			want = StateSleeping
		} else if s.Exists(Record) {
			want = StateRecording
		}
		assert.Equal(t, want, CurrentState(s), "step %d", i)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "SLEEPING", StateSleeping.String())
	assert.Equal(t, "RECORDING", StateRecording.String())

	assert.True(t, StateActive.Capturing())
	assert.True(t, StateRecording.Capturing())
	assert.False(t, StateSleeping.Capturing())
}
