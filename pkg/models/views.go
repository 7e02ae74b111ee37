package models

import "time"

// User is an actor vertex.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Admin    bool   `json:"admin"`
}

// Stamp records who did something and when.
type Stamp struct {
	User User      `json:"user"`
	Date time.Time `json:"date"`
}

// SubjectView is the plain-data form of a subject vertex.
type SubjectView struct {
	ID         string         `json:"id"`
	Kind       SubjectKind    `json:"kind"`
	Key        string         `json:"key"`
	Properties map[string]any `json:"properties"`
}

// EventView is one entry of a chain as seen by callers: payload, proposer, derived status and
// the decision when there is one.
type EventView struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Payload   Payload   `json:"payload"`
	AddedBy   Stamp     `json:"addedBy"`
	Status    Status    `json:"status"`
	DecidedBy *Stamp    `json:"decidedBy"`
}

// TipView is the current end of a chain. Event is nil when the chain is empty.
type TipView struct {
	Subject SubjectView `json:"subject"`
	Event   *EventView  `json:"event"`
}

// SubjectInfo is a subject together with the state of its chain.
type SubjectInfo struct {
	Subject     SubjectView `json:"subject"`
	ChainLength int         `json:"chainLength"`
	Tip         *EventView  `json:"tip"`
	LastActive  *EventView  `json:"lastActive"`
}

// PendingAuthorization is a review queue entry.
type PendingAuthorization struct {
	Subject SubjectView `json:"subject"`
	Event   EventView   `json:"event"`
}

// Inheritance of a variant call.
type Inheritance string

const (
	Heterozygous Inheritance = "HETEROZYGOUS"
	Homozygous   Inheritance = "HOMOZYGOUS"
)

// Weight is the contribution of one call to an occurrence count.
func (i Inheritance) Weight() int {
	if i == Homozygous {
		return 2
	}
	return 1
}

func (i Inheritance) EdgeType() EdgeType {
	if i == Homozygous {
		return EdgeHasHomVariant
	}
	return EdgeHasHetVariant
}

// InheritanceOf maps a call edge type back to its inheritance.
func InheritanceOf(t EdgeType) (Inheritance, bool) {
	switch t {
	case EdgeHasHetVariant:
		return Heterozygous, true
	case EdgeHasHomVariant:
		return Homozygous, true
	default:
		return "", false
	}
}

// Observation is one approved dataset carrying a variant.
type Observation struct {
	Inheritance Inheritance `json:"inheritance"`
	Sample      SubjectView `json:"sample"`
	Dataset     SubjectView `json:"dataset"`
}

// DatasetSummary pairs a dataset with its owning sample.
type DatasetSummary struct {
	Sample  SubjectView `json:"sample"`
	Dataset SubjectView `json:"dataset"`
}

// Symbol is a gene symbol vertex.
type Symbol struct {
	ID       string `json:"id"`
	SymbolID string `json:"symbolId"`
}

// PanelInfo is a panel with its designer and gene symbols.
type PanelInfo struct {
	Panel   SubjectView `json:"panel"`
	AddedBy Stamp       `json:"addedBy"`
	Symbols []Symbol    `json:"symbols"`
}

// SymbolInfo is a gene symbol with the features it links to and the panels listing it.
type SymbolInfo struct {
	Symbol   Symbol        `json:"symbol"`
	Features []SubjectView `json:"features"`
	Panels   []SubjectView `json:"panels"`
}
