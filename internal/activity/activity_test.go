package activity

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ytnobody/teamsctl/internal/rpc"
)

func TestRecordAdvancesToolAndTurnCounters(t *testing.T) {
	tr := New()
	tr.Record("w1", rpc.Event{Type: "tool_execution_start", Raw: []byte(`{"type":"tool_execution_start","toolName":"bash"}`)})
	tr.Record("w1", rpc.Event{Type: "tool_execution_end"})
	tr.Record("w1", rpc.Event{Type: "message_end"})

	snap := tr.Snapshot("w1")
	require.Equal(t, 1, snap.ToolUseCount)
	require.Equal(t, "bash", snap.LastToolName)
	require.Empty(t, snap.CurrentToolName)
	require.Equal(t, 1, snap.TurnCount)
	require.Len(t, snap.History, 3)
}

func TestHistoryRingBufferTrimsToTenEvents(t *testing.T) {
	tr := New()
	for i := 0; i < 15; i++ {
		tr.Record("w1", rpc.Event{Type: "message_update"})
	}
	snap := tr.Snapshot("w1")
	require.Len(t, snap.History, historySize)
}

func TestResetClearsWorker(t *testing.T) {
	tr := New()
	tr.Record("w1", rpc.Event{Type: "message_end"})
	tr.Reset("w1")
	snap := tr.Snapshot("w1")
	require.Equal(t, 0, snap.TurnCount)
	require.Empty(t, snap.History)
}

func TestSnapshotOfUnknownWorkerIsZeroValue(t *testing.T) {
	tr := New()
	snap := tr.Snapshot("ghost")
	require.Equal(t, Counters{}, snap)
}
