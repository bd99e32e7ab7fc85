package queue

import (
	"fmt"
	"strings"
)

// DispatchMessage is the broker payload that starts (or resumes) a delivery
// attempt. It is an inert fact: the worker loads the audit record by id and
// owns all behavior.
type DispatchMessage struct {
	RecordID      string `json:"recordId"`
	LeadID        string `json:"leadId,omitempty"`
	Email         string `json:"email"`
	CorrelationID string `json:"correlationId,omitempty"`
	Attempt       int    `json:"attempt"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return fmt.Errorf("recordId is required")
	}
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if m.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1")
	}
	return nil
}
