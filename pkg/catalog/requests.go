package catalog

import "github.com/Ramsey-B/fern/pkg/models"

type NewUser struct {
	Email    string `json:"email" yaml:"email" validate:"required,email"`
	FullName string `json:"fullName" yaml:"fullName" validate:"required"`
	Admin    bool   `json:"admin" yaml:"admin"`
}

type NewSample struct {
	SampleID string `json:"sampleId" yaml:"sampleId" validate:"required"`
	Tissue   string `json:"tissue,omitempty" yaml:"tissue"`
}

type NewDataset struct {
	models.DatasetKey `yaml:",inline"`
	Assay             string `json:"assay,omitempty" yaml:"assay"`
}

type NewVariant struct {
	VariantID string `json:"variantId" yaml:"variantId" validate:"required"`
}

// NewVariantCall records that a dataset carries a variant.
type NewVariantCall struct {
	Dataset     models.DatasetKey  `json:"dataset" yaml:"dataset" validate:"required"`
	VariantID   string             `json:"variantId" yaml:"variantId" validate:"required"`
	Inheritance models.Inheritance `json:"inheritance" yaml:"inheritance" validate:"required,oneof=HETEROZYGOUS HOMOZYGOUS"`
}

type NewFeature struct {
	FeatureID string `json:"featureId" yaml:"featureId" validate:"required"`
	SymbolID  string `json:"symbolId,omitempty" yaml:"symbolId"`
}

// NewPanel is a named list of gene symbols designed by a user.
type NewPanel struct {
	PanelID string   `json:"panelId" yaml:"panelId" validate:"required"`
	Email   string   `json:"email" yaml:"email" validate:"required,email"`
	Symbols []string `json:"list" yaml:"list" validate:"dive,required"`
}
