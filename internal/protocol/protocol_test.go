package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	e := Envelope{Type: TaskAssignment, TaskID: "t1", Subject: "do thing", AssignedBy: "lead"}
	text, err := Encode(e)
	require.NoError(t, err)

	decoded, ok := Decode(text)
	require.True(t, ok)
	require.Equal(t, e, decoded)
	require.True(t, Valid(decoded))
}

func TestDecodeMalformedIsTotal(t *testing.T) {
	_, ok := Decode("not json at all")
	require.False(t, ok)

	_, ok = Decode(`{"not":"an envelope"}`)
	require.False(t, ok)

	_, ok = Decode(`42`)
	require.False(t, ok)
}

func TestValidRejectsMissingRequiredFields(t *testing.T) {
	require.False(t, Valid(Envelope{Type: TaskAssignment}))
	require.False(t, Valid(Envelope{Type: PlanApprovalRequest, RequestID: "r1", From: "w1"}))
	require.True(t, Valid(Envelope{Type: PlanApprovalRequest, RequestID: "r1", From: "w1", Plan: "p"}))
	require.False(t, Valid(Envelope{Type: "bogus_type"}))
}
