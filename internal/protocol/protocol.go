// Package protocol implements the typed JSON envelopes that flow through
// mailboxes and the teammate RPC channel. Envelopes are a sum type
// discriminated by a "type" field, using the same flat-struct,
// discriminated-event idiom as the NDJSON stream events on the RPC
// channel. Parsing is total: unknown or malformed input never panics,
// it just yields ok=false.
package protocol

import "encoding/json"

// EnvelopeType enumerates every wire envelope kind.
type EnvelopeType string

const (
	TaskAssignment      EnvelopeType = "task_assignment"
	ShutdownRequest     EnvelopeType = "shutdown_request"
	PlanApproved        EnvelopeType = "plan_approved"
	PlanRejected        EnvelopeType = "plan_rejected"
	AbortRequest        EnvelopeType = "abort_request"
	SetSessionName      EnvelopeType = "set_session_name"
	IdleNotification    EnvelopeType = "idle_notification"
	ShutdownApproved    EnvelopeType = "shutdown_approved"
	ShutdownRejected    EnvelopeType = "shutdown_rejected"
	PlanApprovalRequest EnvelopeType = "plan_approval_request"
	PeerDMSent          EnvelopeType = "peer_dm_sent"
)

// Envelope is the flat wire representation: every field any envelope kind
// might carry, all optional except Type. This mirrors how claude_stream.go's
// streamEvent carries every possible field and switches on Type.
type Envelope struct {
	Type EnvelopeType `json:"type"`

	// task_assignment
	TaskID      string `json:"taskId,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
	AssignedBy  string `json:"assignedBy,omitempty"`

	// shutdown_request / abort_request / plan_approved / plan_rejected /
	// shutdown_approved / shutdown_rejected / plan_approval_request
	RequestID string `json:"requestId,omitempty"`
	From      string `json:"from,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Feedback  string `json:"feedback,omitempty"`

	// set_session_name
	Name string `json:"name,omitempty"`

	// idle_notification
	CompletedTaskID string `json:"completedTaskId,omitempty"`
	CompletedStatus string `json:"completedStatus,omitempty"`
	FailureReason   string `json:"failureReason,omitempty"`

	// plan_approval_request
	Plan string `json:"plan,omitempty"`

	// peer_dm_sent
	To      string `json:"to,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Encode serializes an envelope to its JSON text form for storage inside a
// MailboxMessage.Text or an RPC line.
func Encode(e Envelope) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses text as an Envelope. Total: any malformed or non-object
// input yields ok=false rather than an error, matching the "parsers must be
// total" design note. A valid JSON object with an unrecognized or missing
// "type" still decodes (callers can branch on Type == "").
func Decode(text string) (Envelope, bool) {
	var e Envelope
	if err := json.Unmarshal([]byte(text), &e); err != nil {
		return Envelope{}, false
	}
	if e.Type == "" {
		return Envelope{}, false
	}
	return e, true
}

// Valid reports whether e carries the required fields for its declared
// Type, per the envelope table. Unknown types are invalid.
func Valid(e Envelope) bool {
	switch e.Type {
	case TaskAssignment:
		return e.TaskID != ""
	case ShutdownRequest:
		return e.RequestID != ""
	case PlanApproved, PlanRejected:
		return e.RequestID != "" && e.From != ""
	case AbortRequest:
		return e.RequestID != ""
	case SetSessionName:
		return e.Name != ""
	case IdleNotification:
		return e.From != ""
	case ShutdownApproved, ShutdownRejected:
		return e.RequestID != ""
	case PlanApprovalRequest:
		return e.RequestID != "" && e.From != "" && e.Plan != ""
	case PeerDMSent:
		return e.From != "" && e.To != "" && e.Summary != ""
	default:
		return false
	}
}
