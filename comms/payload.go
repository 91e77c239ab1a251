package comms

import (
	"github.com/CodedInternet/gripperd/gripper"
)

// Envelope types.
const (
	TypeGoal     = "goal"
	TypeCancel   = "cancel"
	TypeFeedback = "feedback"
	TypeResult   = "result"
	TypeStatus   = "status"
)

// Status values sent in reply to client requests.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// GoalCommand is the body of a goal request.
type GoalCommand struct {
	Position  float64 `json:"position"`
	MaxEffort float64 `json:"max_effort"`
}

func (c GoalCommand) Goal() gripper.Goal {
	return gripper.Goal{Position: c.Position, MaxEffort: c.MaxEffort}
}

// Request is read from the client. Goals carry a command, cancels only the id.
type Request struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Command *GoalCommand `json:"command,omitempty"`
}

// Message is written to the client.
type Message struct {
	Type     string                    `json:"type"`
	ID       string                    `json:"id,omitempty"`
	Status   string                    `json:"status,omitempty"`
	Reason   string                    `json:"reason,omitempty"`
	Feedback *gripper.FeedbackSnapshot `json:"feedback,omitempty"`
	Result   *gripper.FeedbackSnapshot `json:"result,omitempty"`
}

func feedbackMessage(id string, fb gripper.FeedbackSnapshot) Message {
	return Message{Type: TypeFeedback, ID: id, Feedback: &fb}
}

func resultMessage(id string, status gripper.Status, result gripper.FeedbackSnapshot, reason string) Message {
	return Message{Type: TypeResult, ID: id, Status: status.String(), Reason: reason, Result: &result}
}

func statusMessage(id, status, reason string) Message {
	return Message{Type: TypeStatus, ID: id, Status: status, Reason: reason}
}
