// Package fixtures loads users and subjects from a YAML file into the catalog.
package fixtures

import (
	"context"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/catalog"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
)

// File is the layout of a fixtures file. Sections are applied in field order so that datasets
// find their samples and panels find their designers.
type File struct {
	Users        []catalog.NewUser        `yaml:"users"`
	Samples      []catalog.NewSample      `yaml:"samples"`
	Datasets     []catalog.NewDataset     `yaml:"datasets"`
	Variants     []catalog.NewVariant     `yaml:"variants"`
	VariantCalls []catalog.NewVariantCall `yaml:"variantCalls"`
	Features     []catalog.NewFeature     `yaml:"features"`
	Panels       []catalog.NewPanel       `yaml:"panels"`
}

// Result counts what Apply created and what already existed.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return &f, nil
}

// Apply adds every entry through the catalog. Entries that already exist are skipped, so a
// file can be applied more than once.
func Apply(ctx context.Context, svc *catalog.Service, f *File, logger ectologger.Logger) (Result, error) {
	var result Result

	add := func(what string, err error) error {
		switch {
		case err == nil:
			result.Created++
		case apperrors.KindOf(err) == apperrors.KindConflict:
			result.Skipped++
			logger.WithContext(ctx).WithField("fixture", what).Debug("Fixture already exists")
		default:
			return fmt.Errorf("fixture %s: %w", what, err)
		}
		return nil
	}

	for _, u := range f.Users {
		_, err := svc.AddUser(ctx, u)
		if err := add("user "+u.Email, err); err != nil {
			return result, err
		}
	}
	for _, s := range f.Samples {
		_, err := svc.AddSample(ctx, s)
		if err := add("sample "+s.SampleID, err); err != nil {
			return result, err
		}
	}
	for _, d := range f.Datasets {
		_, err := svc.AddDataset(ctx, d)
		if err := add("dataset "+d.ID(), err); err != nil {
			return result, err
		}
	}
	for _, v := range f.Variants {
		_, err := svc.AddVariant(ctx, v)
		if err := add("variant "+v.VariantID, err); err != nil {
			return result, err
		}
	}
	for _, c := range f.VariantCalls {
		err := svc.AddVariantCall(ctx, c)
		if err := add("call "+c.Dataset.ID()+" "+c.VariantID, err); err != nil {
			return result, err
		}
	}
	for _, feature := range f.Features {
		_, err := svc.AddFeature(ctx, feature)
		if err := add("feature "+feature.FeatureID, err); err != nil {
			return result, err
		}
	}
	for _, p := range f.Panels {
		_, err := svc.AddPanel(ctx, p)
		if err := add("panel "+p.PanelID, err); err != nil {
			return result, err
		}
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"created": result.Created,
		"skipped": result.Skipped,
	}).Info("Applied fixtures")
	return result, nil
}
