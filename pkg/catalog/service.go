// Package catalog creates and looks up the users and subjects that event chains hang off.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/chain"
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service handles catalog operations
type Service struct {
	store  graph.Store
	logger ectologger.Logger
	now    func() time.Time
}

// NewService creates a new catalog service
func NewService(store graph.Store, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddUser creates a user. Emails are stored lower-cased and must be unique.
func (s *Service) AddUser(ctx context.Context, req NewUser) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddUser")
	defer span.End()

	req.Email = chain.NormalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var user models.User
	err := s.store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		v, err := createVertex(ctx, w, models.LabelUser, map[string]any{
			models.PropEmail:    req.Email,
			models.PropFullName: req.FullName,
			models.PropAdmin:    req.Admin,
		})
		if err != nil {
			return err
		}
		user = chain.UserView(v)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, err, "Failed to add user")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"email": user.Email,
		"admin": user.Admin,
	}).Info("Added user")
	return &user, nil
}

func (s *Service) GetUser(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.GetUser")
	defer span.End()

	var user models.User
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		v, err := chain.ResolveUser(ctx, r, email)
		if err != nil {
			return err
		}
		user = chain.UserView(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) AddSample(ctx context.Context, req NewSample) (*models.SubjectView, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddSample")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	props := map[string]any{models.SubjectSample.KeyProperty(): req.SampleID}
	if req.Tissue != "" {
		props["tissue"] = req.Tissue
	}
	return s.addSubject(ctx, models.LabelSample, props, nil)
}

// AddDataset creates a dataset under an existing sample.
func (s *Service) AddDataset(ctx context.Context, req NewDataset) (*models.SubjectView, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddDataset")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	props := map[string]any{
		models.SubjectDataset.KeyProperty(): req.ID(),
		models.SubjectSample.KeyProperty():  req.SampleID,
		models.PropWorklistID:               req.WorklistID,
		models.PropSeqID:                    req.SeqID,
	}
	if req.Assay != "" {
		props[models.PropAssay] = req.Assay
	}

	return s.addSubject(ctx, models.LabelDataset, props, func(ctx context.Context, w graph.Writer, dataset *graph.Vertex) error {
		sample, err := chain.ResolveSubject(ctx, w, models.SubjectRef{Kind: models.SubjectSample, Key: req.SampleID})
		if err != nil {
			return err
		}
		_, err = w.CreateEdge(ctx, models.EdgeHasData, sample.ID, dataset.ID, nil)
		return err
	})
}

// AddVariant creates the variant unless it already exists.
func (s *Service) AddVariant(ctx context.Context, req NewVariant) (*models.SubjectView, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddVariant")
	defer span.End()

	req.VariantID = strings.TrimSpace(req.VariantID)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var view models.SubjectView
	err := s.store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		v, err := matchOrCreate(ctx, w, models.LabelVariant, models.SubjectVariant.KeyProperty(), req.VariantID)
		if err != nil {
			return err
		}
		view = chain.SubjectView(v)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, err, "Failed to add variant")
	}
	return &view, nil
}

// AddVariantCall links a dataset to a variant with the call's inheritance, creating the variant
// if needed. Recording the same call twice is a no-op.
func (s *Service) AddVariantCall(ctx context.Context, req NewVariantCall) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddVariantCall")
	defer span.End()

	req.VariantID = strings.TrimSpace(req.VariantID)
	if err := validateRequest(req); err != nil {
		return err
	}

	err := s.store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		dataset, err := chain.ResolveSubject(ctx, w, req.Dataset.Ref())
		if err != nil {
			return err
		}
		variant, err := matchOrCreate(ctx, w, models.LabelVariant, models.SubjectVariant.KeyProperty(), req.VariantID)
		if err != nil {
			return err
		}

		existing, err := w.Edges(ctx, dataset.ID, graph.Outgoing, req.Inheritance.EdgeType())
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.To == variant.ID {
				return nil
			}
		}

		_, err = w.CreateEdge(ctx, req.Inheritance.EdgeType(), dataset.ID, variant.ID, nil)
		return err
	})
	if err != nil {
		return s.fail(ctx, err, "Failed to add variant call")
	}
	return nil
}

// AddFeature creates a feature, linked from its gene symbol when one is given.
func (s *Service) AddFeature(ctx context.Context, req NewFeature) (*models.SubjectView, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddFeature")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return s.addSubject(ctx, models.LabelFeature, map[string]any{models.SubjectFeature.KeyProperty(): req.FeatureID},
		func(ctx context.Context, w graph.Writer, feature *graph.Vertex) error {
			if req.SymbolID == "" {
				return nil
			}
			symbol, err := matchOrCreate(ctx, w, models.LabelSymbol, models.PropSymbolID, req.SymbolID)
			if err != nil {
				return err
			}
			_, err = w.CreateEdge(ctx, models.EdgeHasFeature, symbol.ID, feature.ID, nil)
			return err
		})
}

// AddPanel creates a panel designed by a user from a list of gene symbols.
func (s *Service) AddPanel(ctx context.Context, req NewPanel) (*models.SubjectView, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.AddPanel")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return s.addSubject(ctx, models.LabelPanel, map[string]any{models.SubjectPanel.KeyProperty(): req.PanelID},
		func(ctx context.Context, w graph.Writer, panel *graph.Vertex) error {
			user, err := chain.ResolveUser(ctx, w, req.Email)
			if err != nil {
				return err
			}
			if _, err := w.CreateEdge(ctx, models.EdgeAddedBy, panel.ID, user.ID, map[string]any{
				models.PropDate: models.Millis(s.now()),
			}); err != nil {
				return err
			}

			seen := make(map[string]bool, len(req.Symbols))
			for _, symbolID := range req.Symbols {
				if seen[symbolID] {
					continue
				}
				seen[symbolID] = true

				symbol, err := matchOrCreate(ctx, w, models.LabelSymbol, models.PropSymbolID, symbolID)
				if err != nil {
					return err
				}
				if _, err := w.CreateEdge(ctx, models.EdgeContainsSymbol, panel.ID, symbol.ID, nil); err != nil {
					return err
				}
			}
			return nil
		})
}

// Panels lists every panel with its designer and symbols.
func (s *Service) Panels(ctx context.Context) ([]models.PanelInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.Panels")
	defer span.End()

	panels := []models.PanelInfo{}
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		vertices, err := r.ListVertices(ctx, models.LabelPanel)
		if err != nil {
			return err
		}
		for _, v := range vertices {
			info, err := panelInfo(ctx, r, v)
			if err != nil {
				return err
			}
			panels = append(panels, *info)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, err, "Failed to list panels")
	}
	return panels, nil
}

// Panel returns one panel with its designer and symbols.
func (s *Service) Panel(ctx context.Context, panelID string) (*models.PanelInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.Panel")
	defer span.End()

	var info *models.PanelInfo
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		panel, err := chain.ResolveSubject(ctx, r, models.SubjectRef{Kind: models.SubjectPanel, Key: panelID})
		if err != nil {
			return err
		}
		info, err = panelInfo(ctx, r, panel)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, err, "Failed to load panel")
	}
	return info, nil
}

// Symbol returns a gene symbol with its features and the panels that list it.
func (s *Service) Symbol(ctx context.Context, symbolID string) (*models.SymbolInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.Symbol")
	defer span.End()

	info := &models.SymbolInfo{Features: []models.SubjectView{}, Panels: []models.SubjectView{}}
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		symbol, err := r.FindVertex(ctx, models.LabelSymbol, models.PropSymbolID, symbolID)
		if errors.Is(err, graph.ErrNotFound) {
			return apperrors.NotFoundf("symbol %s not found", symbolID)
		}
		if err != nil {
			return fmt.Errorf("find symbol %s: %w", symbolID, err)
		}
		info.Symbol = symbolView(symbol)

		if info.Features, err = neighbours(ctx, r, symbol.ID, graph.Outgoing, models.EdgeHasFeature); err != nil {
			return err
		}
		info.Panels, err = neighbours(ctx, r, symbol.ID, graph.Incoming, models.EdgeContainsSymbol)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, err, "Failed to load symbol")
	}
	return info, nil
}

func panelInfo(ctx context.Context, r graph.Reader, panel *graph.Vertex) (*models.PanelInfo, error) {
	info := &models.PanelInfo{Panel: chain.SubjectView(panel), Symbols: []models.Symbol{}}

	addedBy, err := r.Edges(ctx, panel.ID, graph.Outgoing, models.EdgeAddedBy)
	if err != nil {
		return nil, fmt.Errorf("load designer of panel %s: %w", panel.ID, err)
	}
	if len(addedBy) != 1 {
		return nil, apperrors.Integrityf("panel %s has %d %s edges", panel.ID, len(addedBy), models.EdgeAddedBy)
	}
	user, err := r.GetVertex(ctx, addedBy[0].To)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", addedBy[0].To, err)
	}
	info.AddedBy = models.Stamp{
		User: chain.UserView(user),
		Date: models.TimeProp(addedBy[0].Props, models.PropDate),
	}

	contains, err := r.Edges(ctx, panel.ID, graph.Outgoing, models.EdgeContainsSymbol)
	if err != nil {
		return nil, fmt.Errorf("load symbols of panel %s: %w", panel.ID, err)
	}
	for _, edge := range contains {
		symbol, err := r.GetVertex(ctx, edge.To)
		if err != nil {
			return nil, fmt.Errorf("load symbol %s: %w", edge.To, err)
		}
		info.Symbols = append(info.Symbols, symbolView(symbol))
	}
	return info, nil
}

func symbolView(v *graph.Vertex) models.Symbol {
	return models.Symbol{ID: v.ID, SymbolID: models.StringProp(v.Props, models.PropSymbolID)}
}

func neighbours(ctx context.Context, r graph.Reader, id string, dir graph.Direction, edgeType models.EdgeType) ([]models.SubjectView, error) {
	edges, err := r.Edges(ctx, id, dir, edgeType)
	if err != nil {
		return nil, fmt.Errorf("load %s edges of %s: %w", edgeType, id, err)
	}
	views := make([]models.SubjectView, 0, len(edges))
	for _, edge := range edges {
		other := edge.To
		if dir == graph.Incoming {
			other = edge.From
		}
		v, err := r.GetVertex(ctx, other)
		if err != nil {
			return nil, fmt.Errorf("load vertex %s: %w", other, err)
		}
		views = append(views, chain.SubjectView(v))
	}
	return views, nil
}

// SubjectInfo returns a subject with the length, tip and last active event of its chain.
func (s *Service) SubjectInfo(ctx context.Context, ref models.SubjectRef) (*models.SubjectInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.SubjectInfo")
	defer span.End()

	var info models.SubjectInfo
	err := s.store.Read(ctx, func(ctx context.Context, r graph.Reader) error {
		subject, err := chain.ResolveSubject(ctx, r, ref)
		if err != nil {
			return err
		}
		links, err := chain.Walk(ctx, r, subject.ID)
		if err != nil {
			return err
		}

		info.Subject = chain.SubjectView(subject)
		info.ChainLength = len(links)
		if len(links) == 0 {
			return nil
		}

		views, err := chain.LinkViews(ctx, r, links)
		if err != nil {
			return err
		}
		tip := views[len(views)-1]
		info.Tip = &tip
		for i := len(views) - 1; i >= 0; i-- {
			if views[i].Status == models.StatusActive {
				active := views[i]
				info.LastActive = &active
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, err, "Failed to load subject info")
	}
	return &info, nil
}

type linkFunc func(ctx context.Context, w graph.Writer, created *graph.Vertex) error

func (s *Service) addSubject(ctx context.Context, label models.Label, props map[string]any, link linkFunc) (*models.SubjectView, error) {
	var view models.SubjectView
	err := s.store.Write(ctx, func(ctx context.Context, w graph.Writer) error {
		v, err := createVertex(ctx, w, label, props)
		if err != nil {
			return err
		}
		if link != nil {
			if err := link(ctx, w, v); err != nil {
				return err
			}
		}
		view = chain.SubjectView(v)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, err, fmt.Sprintf("Failed to add %s", label))
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"kind": view.Kind,
		"key":  view.Key,
	}).Info("Added subject")
	return &view, nil
}

func (s *Service) fail(ctx context.Context, err error, msg string) error {
	log := s.logger.WithContext(ctx).WithError(err)
	switch apperrors.KindOf(err) {
	case apperrors.KindUnknown, apperrors.KindIntegrity:
		log.Error(msg)
	default:
		log.Debug(msg)
	}
	return err
}

func createVertex(ctx context.Context, w graph.Writer, label models.Label, props map[string]any) (*graph.Vertex, error) {
	v, err := w.CreateVertex(ctx, label, props)
	if errors.Is(err, graph.ErrDuplicateKey) {
		key := models.UniqueKeys()[label]
		return nil, apperrors.Conflictf("%s %v already exists", label, props[key])
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return v, nil
}

func matchOrCreate(ctx context.Context, w graph.Writer, label models.Label, key, value string) (*graph.Vertex, error) {
	v, err := w.FindVertex(ctx, label, key, value)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return nil, fmt.Errorf("find %s %s: %w", label, value, err)
	}
	return createVertex(ctx, w, label, map[string]any{key: value})
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "invalid request")
	}
	return nil
}
