package models

import (
	"fmt"
	"strings"
)

// SubjectKind is the closed set of vertex kinds that own an event chain.
type SubjectKind string

const (
	SubjectSample  SubjectKind = "Sample"
	SubjectDataset SubjectKind = "Dataset"
	SubjectVariant SubjectKind = "Variant"
	SubjectFeature SubjectKind = "Feature"
	SubjectPanel   SubjectKind = "Panel"
)

var subjectKindsByLabel = map[Label]SubjectKind{
	LabelSample:  SubjectSample,
	LabelDataset: SubjectDataset,
	LabelVariant: SubjectVariant,
	LabelFeature: SubjectFeature,
	LabelPanel:   SubjectPanel,
}

// subjectEvents lists the event kinds each subject kind accepts.
var subjectEvents = map[SubjectKind][]EventKind{
	SubjectDataset: {EventQualityControl},
	SubjectVariant: {EventPathogenicity},
	SubjectFeature: {EventFeaturePreference},
}

// ParseSubjectKind accepts the label ("Dataset") or its lower-case plural form ("datasets").
func ParseSubjectKind(s string) (SubjectKind, error) {
	normalized := strings.TrimSuffix(strings.ToLower(s), "s")
	for _, kind := range subjectKindsByLabel {
		if strings.ToLower(string(kind)) == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown subject kind %q", s)
}

func (k SubjectKind) Label() Label {
	return Label(k)
}

// KeyProperty is the natural key property of the kind.
func (k SubjectKind) KeyProperty() string {
	return UniqueKeys()[k.Label()]
}

// Accepts reports whether an event of the given kind may be appended to this subject kind.
func (k SubjectKind) Accepts(kind EventKind) bool {
	for _, allowed := range subjectEvents[k] {
		if allowed == kind {
			return true
		}
	}
	return false
}

// EventKinds lists the event kinds the subject kind accepts.
func (k SubjectKind) EventKinds() []EventKind {
	return append([]EventKind(nil), subjectEvents[k]...)
}

// SubjectKindOf maps a vertex label back to its subject kind.
func SubjectKindOf(label Label) (SubjectKind, bool) {
	kind, ok := subjectKindsByLabel[label]
	return kind, ok
}

// SubjectRef addresses a subject by kind and natural key.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	Key  string      `json:"key"`
}

func (r SubjectRef) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Key)
}

// DatasetKey is the composite natural key of a dataset.
type DatasetKey struct {
	SampleID   string `json:"sampleId" yaml:"sampleId" validate:"required"`
	WorklistID string `json:"worklistId" yaml:"worklistId" validate:"required"`
	SeqID      string `json:"seqId" yaml:"seqId" validate:"required"`
}

// ID is the stored datasetId property.
func (k DatasetKey) ID() string {
	return k.SampleID + ":" + k.WorklistID + ":" + k.SeqID
}

func (k DatasetKey) Ref() SubjectRef {
	return SubjectRef{Kind: SubjectDataset, Key: k.ID()}
}
