package payflow

import (
	"encoding/json"
	"fmt"
)

// StageError captures a capability-level failure folded into stage output.
// These are data, not control flow: the walk continues past them.
type StageError struct {
	Stage      string `json:"stage"`
	Capability string `json:"capability,omitempty"`
	Message    string `json:"message"`
}

// StageUpdate is the partial state update one stage is responsible for.
// Fields merge according to each field's declared policy; ToolSelections and
// Errors land on their accumulator fields. Action and Details describe the
// audit entry the engine records for the stage.
type StageUpdate struct {
	Fields         map[Field]any
	ToolSelections map[string]string
	Errors         []StageError
	Action         string
	Details        map[string]any
}

// State is the accumulating record threaded through every stage. One engine
// walk owns a State exclusively; it is not safe for concurrent use.
type State struct {
	values map[Field]any
}

// NewState builds the initial state for an invoice run.
func NewState(payload InvoicePayload) *State {
	return &State{
		values: map[Field]any{
			FieldInvoicePayload: payload,
			FieldAuditLog:       []AuditEntry{},
			FieldToolSelections: map[string]string{},
			FieldErrors:         []StageError{},
		},
	}
}

// Value returns the raw value of a field.
func (s *State) Value(f Field) (any, bool) {
	v, ok := s.values[f]
	return v, ok
}

// Merge applies a stage's partial update per field policy.
func (s *State) Merge(u *StageUpdate) error {
	if u == nil {
		return nil
	}
	for f, v := range u.Fields {
		switch PolicyFor(f) {
		case PolicyOverwrite:
			s.values[f] = v
		case PolicyWriteOnce:
			if prior, ok := s.values[f]; ok && prior != v {
				return NewFatalError("field %q is write-once, already holds %v", f, prior)
			}
			s.values[f] = v
		default:
			// Accumulator fields have dedicated StageUpdate slots; a stage
			// writing them directly is a defect in the stage itself.
			return NewFatalError("field %q is an accumulator and cannot be set directly", f)
		}
	}
	if len(u.ToolSelections) > 0 {
		selections := s.ToolSelections()
		for k, v := range u.ToolSelections {
			selections[k] = v
		}
		s.values[FieldToolSelections] = selections
	}
	if len(u.Errors) > 0 {
		s.values[FieldErrors] = append(s.StageErrors(), u.Errors...)
	}
	return nil
}

// set writes a field directly, bypassing merge policy. Engine use only.
func (s *State) set(f Field, v any) {
	s.values[f] = v
}

// appendAudit adds an entry to the audit accumulator in execution order.
func (s *State) appendAudit(entry AuditEntry) {
	s.values[FieldAuditLog] = append(s.AuditTrail(), entry)
}

// Snapshot serializes the full state for durable checkpointing.
func (s *State) Snapshot() (json.RawMessage, error) {
	data, err := json.Marshal(s.values)
	if err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}
	return data, nil
}

// RestoreState rehydrates a state snapshot. Fields with typed accumulator or
// document semantics are decoded back to their concrete types.
func RestoreState(data json.RawMessage) (*State, error) {
	var raw map[Field]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	values := make(map[Field]any, len(raw))
	for f, rv := range raw {
		v, err := decodeField(f, rv)
		if err != nil {
			return nil, fmt.Errorf("restore state field %q: %w", f, err)
		}
		values[f] = v
	}
	s := &State{values: values}
	if _, ok := s.values[FieldAuditLog]; !ok {
		s.values[FieldAuditLog] = []AuditEntry{}
	}
	if _, ok := s.values[FieldToolSelections]; !ok {
		s.values[FieldToolSelections] = map[string]string{}
	}
	if _, ok := s.values[FieldErrors]; !ok {
		s.values[FieldErrors] = []StageError{}
	}
	return s, nil
}

func decodeField(f Field, raw json.RawMessage) (any, error) {
	switch f {
	case FieldInvoicePayload:
		var p InvoicePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case FieldVendorProfile:
		var p VendorProfile
		err := json.Unmarshal(raw, &p)
		return p, err
	case FieldAuditLog:
		var entries []AuditEntry
		err := json.Unmarshal(raw, &entries)
		return entries, err
	case FieldErrors:
		var errs []StageError
		err := json.Unmarshal(raw, &errs)
		return errs, err
	case FieldToolSelections:
		var m map[string]string
		err := json.Unmarshal(raw, &m)
		return m, err
	default:
		var v any
		err := json.Unmarshal(raw, &v)
		return v, err
	}
}

// Typed accessors. These tolerate the loosely-typed values a rehydrated
// snapshot may carry.

func (s *State) InvoicePayload() InvoicePayload {
	if p, ok := s.values[FieldInvoicePayload].(InvoicePayload); ok {
		return p
	}
	return InvoicePayload{}
}

func (s *State) WorkflowID() string    { return s.stringValue(FieldWorkflowID) }
func (s *State) CurrentStage() string  { return s.stringValue(FieldCurrentStage) }
func (s *State) Status() string        { return s.stringValue(FieldStatus) }
func (s *State) CheckpointRef() string { return s.stringValue(FieldCheckpointRef) }
func (s *State) ReviewURL() string     { return s.stringValue(FieldReviewURL) }
func (s *State) PausedReason() string  { return s.stringValue(FieldPausedReason) }
func (s *State) MatchResult() string   { return s.stringValue(FieldMatchResult) }
func (s *State) ReviewerID() string    { return s.stringValue(FieldReviewerID) }

// HumanDecision returns the recorded reviewer verdict, or the empty Decision
// when no human has weighed in.
func (s *State) HumanDecision() Decision {
	return Decision(s.stringValue(FieldHumanDecision))
}

// MatchScore reports the two-way match score and whether matching ran.
func (s *State) MatchScore() (float64, bool) {
	v, ok := s.values[FieldMatchScore]
	if !ok {
		return 0, false
	}
	return floatFrom(v), true
}

// VendorProfile returns the enriched vendor identity, zero if prepare has
// not run.
func (s *State) VendorProfile() VendorProfile {
	if p, ok := s.values[FieldVendorProfile].(VendorProfile); ok {
		return p
	}
	return VendorProfile{}
}

// FirstPOAmount returns the amount on the first matched purchase order, the
// reference figure for two-way matching.
func (s *State) FirstPOAmount() float64 {
	v, ok := s.values[FieldMatchedPOs]
	if !ok {
		return 0
	}
	switch list := v.(type) {
	case []map[string]any:
		if len(list) > 0 {
			return floatFrom(list[0]["amount"])
		}
	case []any:
		if len(list) > 0 {
			if m, ok := list[0].(map[string]any); ok {
				return floatFrom(m["amount"])
			}
		}
	}
	return 0
}

// AuditTrail returns the in-state audit accumulator in execution order.
func (s *State) AuditTrail() []AuditEntry {
	if entries, ok := s.values[FieldAuditLog].([]AuditEntry); ok {
		return entries
	}
	return nil
}

// ToolSelections returns a copy of the selection accumulator.
func (s *State) ToolSelections() map[string]string {
	out := map[string]string{}
	if m, ok := s.values[FieldToolSelections].(map[string]string); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// StageErrors returns the capability failures recorded so far.
func (s *State) StageErrors() []StageError {
	if errs, ok := s.values[FieldErrors].([]StageError); ok {
		return errs
	}
	return nil
}

func (s *State) stringValue(f Field) string {
	if v, ok := s.values[f].(string); ok {
		return v
	}
	return ""
}

func floatFrom(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
