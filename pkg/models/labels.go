package models

// Label is a vertex label in the property graph.
type Label string

const (
	LabelSample            Label = "Sample"
	LabelDataset           Label = "Dataset"
	LabelVariant           Label = "Variant"
	LabelFeature           Label = "Feature"
	LabelPanel             Label = "Panel"
	LabelSymbol            Label = "Symbol"
	LabelUser              Label = "User"
	LabelQualityControl    Label = "QualityControl"
	LabelPathogenicity     Label = "Pathogenicity"
	LabelFeaturePreference Label = "FeaturePreference"
)

// EdgeType is a relationship type in the property graph.
type EdgeType string

const (
	EdgeHasEvent       EdgeType = "HAS_EVENT"
	EdgeAddedBy        EdgeType = "ADDED_BY"
	EdgeAuthorisedBy   EdgeType = "AUTHORISED_BY"
	EdgeRejectedBy     EdgeType = "REJECTED_BY"
	EdgeHasData        EdgeType = "HAS_DATA"
	EdgeHasHetVariant  EdgeType = "HAS_HET_VARIANT"
	EdgeHasHomVariant  EdgeType = "HAS_HOM_VARIANT"
	EdgeHasFeature     EdgeType = "HAS_FEATURE"
	EdgeContainsSymbol EdgeType = "CONTAINS_SYMBOL"
)

// Property names shared by several components.
const (
	PropDate           = "date"
	PropEvidence       = "evidence"
	PropEmail          = "email"
	PropFullName       = "fullName"
	PropAdmin          = "admin"
	PropSymbolID       = "symbolId"
	PropWorklistID     = "worklistId"
	PropSeqID          = "seqId"
	PropAssay          = "assay"
	PropPassOrFail     = "passOrFail"
	PropClassification = "classification"
	PropPreference     = "preference"
)

// UniqueKeys maps each keyed label to its natural key property. Stores enforce uniqueness on it.
func UniqueKeys() map[Label]string {
	return map[Label]string{
		LabelSample:  "sampleId",
		LabelDataset: "datasetId",
		LabelVariant: "variantId",
		LabelFeature: "featureId",
		LabelPanel:   "panelId",
		LabelSymbol:  PropSymbolID,
		LabelUser:    PropEmail,
	}
}

// IndexedProperties are non-unique lookups worth an index.
func IndexedProperties() map[Label][]string {
	return map[Label][]string{
		LabelDataset: {PropWorklistID, PropSeqID, PropAssay},
	}
}

// IsEvent reports whether vertices with this label are chain events.
func (l Label) IsEvent() bool {
	_, ok := eventKindsByLabel[l]
	return ok
}

// IsSubject reports whether vertices with this label own a chain.
func (l Label) IsSubject() bool {
	_, ok := subjectKindsByLabel[l]
	return ok
}
