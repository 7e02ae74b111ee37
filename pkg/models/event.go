package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// EventKind is the closed set of reviewable changes.
type EventKind string

const (
	EventQualityControl    EventKind = "QualityControl"
	EventPathogenicity     EventKind = "Pathogenicity"
	EventFeaturePreference EventKind = "FeaturePreference"
)

var eventKindsByLabel = map[Label]EventKind{
	LabelQualityControl:    EventQualityControl,
	LabelPathogenicity:     EventPathogenicity,
	LabelFeaturePreference: EventFeaturePreference,
}

// EventKinds lists every event kind in a stable order.
func EventKinds() []EventKind {
	return []EventKind{EventQualityControl, EventPathogenicity, EventFeaturePreference}
}

func ParseEventKind(s string) (EventKind, error) {
	kind, ok := eventKindsByLabel[Label(s)]
	if !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return kind, nil
}

func (k EventKind) Label() Label {
	return Label(k)
}

// EventKindOf maps a vertex label back to its event kind.
func EventKindOf(label Label) (EventKind, bool) {
	kind, ok := eventKindsByLabel[label]
	return kind, ok
}

// Status is derived from an event's decision edges and never stored.
type Status string

const (
	StatusPendingAuth Status = "PENDING_AUTH"
	StatusActive      Status = "ACTIVE"
	StatusRejected    Status = "REJECTED"
)

// Payload is the typed, immutable content of an event.
type Payload interface {
	Kind() EventKind
	// Properties is the vertex property form. Evidence is omitted when empty.
	Properties() map[string]any
}

type QualityControl struct {
	PassOrFail bool   `json:"passOrFail"`
	Evidence   string `json:"evidence,omitempty"`
}

func (QualityControl) Kind() EventKind { return EventQualityControl }

func (p QualityControl) Properties() map[string]any {
	return withEvidence(map[string]any{PropPassOrFail: p.PassOrFail}, p.Evidence)
}

type Pathogenicity struct {
	Classification int    `json:"classification" validate:"min=1,max=5"`
	Evidence       string `json:"evidence,omitempty"`
}

func (Pathogenicity) Kind() EventKind { return EventPathogenicity }

func (p Pathogenicity) Properties() map[string]any {
	return withEvidence(map[string]any{PropClassification: int64(p.Classification)}, p.Evidence)
}

type FeaturePreference struct {
	Preference bool   `json:"preference"`
	Evidence   string `json:"evidence,omitempty"`
}

func (FeaturePreference) Kind() EventKind { return EventFeaturePreference }

func (p FeaturePreference) Properties() map[string]any {
	return withEvidence(map[string]any{PropPreference: p.Preference}, p.Evidence)
}

// NewPathogenicity validates the classification range.
func NewPathogenicity(classification int, evidence string) (Pathogenicity, error) {
	p := Pathogenicity{Classification: classification, Evidence: evidence}
	if err := ValidatePayload(p); err != nil {
		return Pathogenicity{}, err
	}
	return p, nil
}

// ValidatePayload runs the struct tags of the concrete payload.
func ValidatePayload(p Payload) error {
	if err := validate.Struct(p); err != nil {
		if p.Kind() == EventPathogenicity {
			return fmt.Errorf("illegal classification: accepted values are one to five inclusive")
		}
		return fmt.Errorf("invalid %s payload: %w", p.Kind(), err)
	}
	return nil
}

// Verdicts are pointers on the wire so an omitted or misspelt field is rejected instead of
// being recorded as false.
type (
	qualityControlWire struct {
		PassOrFail *bool  `json:"passOrFail" validate:"required"`
		Evidence   string `json:"evidence"`
	}
	featurePreferenceWire struct {
		Preference *bool  `json:"preference" validate:"required"`
		Evidence   string `json:"evidence"`
	}
)

// DecodePayload parses and validates a wire payload of the given kind.
func DecodePayload(kind EventKind, raw json.RawMessage) (Payload, error) {
	var payload Payload

	switch kind {
	case EventQualityControl:
		var w qualityControlWire
		if err := decodeWire(kind, raw, &w); err != nil {
			return nil, err
		}
		payload = QualityControl{PassOrFail: *w.PassOrFail, Evidence: w.Evidence}
	case EventPathogenicity:
		var p Pathogenicity
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", kind, err)
		}
		payload = p
	case EventFeaturePreference:
		var w featurePreferenceWire
		if err := decodeWire(kind, raw, &w); err != nil {
			return nil, err
		}
		payload = FeaturePreference{Preference: *w.Preference, Evidence: w.Evidence}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}

	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeWire(kind EventKind, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s payload: %s is required", kind, verdictField(kind))
		}
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	return nil
}

func verdictField(kind EventKind) string {
	if kind == EventFeaturePreference {
		return PropPreference
	}
	return PropPassOrFail
}

// PayloadFromProperties rebuilds a payload from stored vertex properties.
func PayloadFromProperties(kind EventKind, props map[string]any) (Payload, error) {
	evidence := StringProp(props, PropEvidence)

	switch kind {
	case EventQualityControl:
		return QualityControl{PassOrFail: BoolProp(props, PropPassOrFail), Evidence: evidence}, nil
	case EventPathogenicity:
		return Pathogenicity{Classification: int(IntProp(props, PropClassification)), Evidence: evidence}, nil
	case EventFeaturePreference:
		return FeaturePreference{Preference: BoolProp(props, PropPreference), Evidence: evidence}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func withEvidence(props map[string]any, evidence string) map[string]any {
	if evidence != "" {
		props[PropEvidence] = evidence
	}
	return props
}
