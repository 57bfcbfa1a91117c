// Package messaging delivers structured envelopes to worker sessions by
// typing them into the target's terminal, and keeps an audit trail of what
// was delivered.
package messaging

import (
	"fmt"
	"strings"
)

// Type classifies an envelope.
type Type string

const (
	TypeInstruction Type = "instruction"
	TypeReport      Type = "report"
	TypeQuestion    Type = "question"
	TypeAnswer      Type = "answer"
	TypeStatus      Type = "status"
	TypeError       Type = "error"
	TypeComplete    Type = "complete"
	TypeAck         Type = "ack"
)

// Types lists every envelope type.
var Types = []Type{
	TypeInstruction, TypeReport, TypeQuestion, TypeAnswer,
	TypeStatus, TypeError, TypeComplete, TypeAck,
}

// Priority ranks an envelope for the recipient.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// ParseType validates a type name.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown message type %q", value)
}

// ParsePriority validates a priority name. Empty means normal.
func ParsePriority(value string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(value)))
	if p == "" {
		return PriorityNormal, nil
	}
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", value)
}

// Attachment references supporting material.
type Attachment struct {
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

// Content is the payload of an envelope.
type Content struct {
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	TaskID      string       `json:"task_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Draft is an envelope before the broker stamps it.
type Draft struct {
	Type     Type
	From     string
	To       string
	Priority Priority
	Content  Content
	// RequiresResponse is carried on the wire only; nothing correlates
	// replies yet.
	RequiresResponse bool
}

// Message is a stamped envelope as delivered.
type Message struct {
	ID               string   `json:"message_id"`
	Type             Type     `json:"type"`
	From             string   `json:"from"`
	To               string   `json:"to"`
	Timestamp        string   `json:"timestamp"`
	Priority         Priority `json:"priority"`
	Content          Content  `json:"content"`
	RequiresResponse bool     `json:"requires_response,omitempty"`
}
