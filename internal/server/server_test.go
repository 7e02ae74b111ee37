package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/graph/memory"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/subject"
	"github.com/Ramsey-B/fern/pkg/workflow"
)

const (
	scientist = "scientist@example.com"
	admin     = "admin@example.com"
	datasetID = "S1:W1:Q1"
	variantID = "1-100-A-T"
)

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()

	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	store := memory.NewStore()

	checker := health.NewChecker("test")
	checker.AddCheck("graph", store.Ping)
	checker.SetReady(true)

	cfg := &config.Config{AppName: "fern-test", AllowOrigins: []string{"*"}, AllowMethods: []string{"GET", "POST"}}
	srv := New(cfg, NewServices(store, logger), logger, Options{Health: checker})
	return &api{t: t, handler: srv.Handler()}
}

func (a *api) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(middleware.HeaderUserID, actor)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed creates both users, a sample with one dataset and a heterozygous call on it, a feature
// and a panel.
func (a *api) seed() {
	a.t.Helper()

	steps := []struct {
		path string
		body any
	}{
		{"/api/v1/users", map[string]any{"email": scientist, "fullName": "Sam Scientist"}},
		{"/api/v1/users", map[string]any{"email": admin, "fullName": "Ada Admin", "admin": true}},
		{"/api/v1/samples", map[string]any{"sampleId": "S1"}},
		{"/api/v1/datasets", map[string]any{"sampleId": "S1", "worklistId": "W1", "seqId": "Q1", "assay": "WES"}},
		{"/api/v1/features", map[string]any{"featureId": "ENST0001", "symbolId": "BRCA1"}},
		{"/api/v1/panels", map[string]any{"panelId": "P1", "email": scientist, "list": []string{"BRCA1", "BRCA2"}}},
	}
	for _, step := range steps {
		rec := a.do(http.MethodPost, step.path, "", step.body)
		require.Equal(a.t, http.StatusCreated, rec.Code, "%s: %s", step.path, rec.Body.String())
	}

	rec := a.do(http.MethodPost, "/api/v1/variants/calls", "", map[string]any{
		"dataset":     map[string]any{"sampleId": "S1", "worklistId": "W1", "seqId": "Q1"},
		"variantId":   variantID,
		"inheritance": "HETEROZYGOUS",
	})
	require.Equal(a.t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func (a *api) propose(kind, key, actor string, payload any) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.do(http.MethodPost, "/api/v1/subjects/"+kind+"/"+key+"/events", actor, map[string]any{"payload": payload})
}

func TestAPI_ProposeAndAuthorize(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rec := a.propose("datasets", datasetID, scientist, map[string]any{"passOrFail": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	proposed := decode[subject.ProposeResponse](t, rec)
	assert.Equal(t, models.StatusPendingAuth, proposed.Status)

	rec = a.propose("datasets", datasetID, scientist, map[string]any{"passOrFail": false})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/datasets/qc/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.DatasetSummary](t, rec))

	rec = a.do(http.MethodPost, "/api/v1/events/"+proposed.EventID+"/approve", scientist, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/events/"+proposed.EventID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(models.StatusActive), decode[map[string]any](t, rec)["status"])

	rec = a.do(http.MethodPost, "/api/v1/events/"+proposed.EventID+"/reject", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "state", decode[middleware.ErrorResponse](t, rec).Kind)

	rec = a.do(http.MethodGet, "/api/v1/events/"+proposed.EventID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	event := decode[map[string]any](t, rec)
	assert.Equal(t, string(models.StatusActive), event["status"])

	rec = a.do(http.MethodGet, "/api/v1/events/"+proposed.EventID+"/root", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, datasetID, decode[models.SubjectView](t, rec).Key)

	rec = a.do(http.MethodGet, "/api/v1/subjects/datasets/"+datasetID+"/last-active", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/subjects/datasets/"+datasetID+"/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = a.do(http.MethodGet, "/api/v1/subjects/Dataset/"+datasetID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["chainLength"])

	rec = a.do(http.MethodGet, "/api/v1/datasets/qc/passed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.DatasetSummary](t, rec), 1)

	rec = a.do(http.MethodGet, "/api/v1/variants/"+variantID+"/occurrences", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[struct{ Count int }](t, rec).Count)

	rec = a.do(http.MethodGet, "/api/v1/variants/"+variantID+"/observations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Observation](t, rec), 1)
}

func TestAPI_TipAndLastActiveOfEmptyChain(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rec := a.do(http.MethodGet, "/api/v1/subjects/variants/"+variantID+"/tip", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tip := decode[models.TipView](t, rec)
	assert.Nil(t, tip.Event)
	assert.Equal(t, variantID, tip.Subject.Key)

	rec = a.do(http.MethodGet, "/api/v1/subjects/variants/"+variantID+"/last-active", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/subjects/variants/"+variantID+"/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestAPI_Errors(t *testing.T) {
	a := newAPI(t)
	a.seed()

	tests := []struct {
		name     string
		method   string
		path     string
		actor    string
		body     any
		wantCode int
	}{
		{name: "DuplicateUser", method: http.MethodPost, path: "/api/v1/users", body: map[string]any{"email": "SCIENTIST@example.com", "fullName": "Dup"}, wantCode: http.StatusConflict},
		{name: "InvalidUser", method: http.MethodPost, path: "/api/v1/users", body: map[string]any{"email": "not-an-email"}, wantCode: http.StatusBadRequest},
		{name: "UnknownUser", method: http.MethodGet, path: "/api/v1/users/nobody@example.com", wantCode: http.StatusNotFound},
		{name: "DatasetWithoutSample", method: http.MethodPost, path: "/api/v1/datasets", body: map[string]any{"sampleId": "S9", "worklistId": "W1", "seqId": "Q1"}, wantCode: http.StatusNotFound},
		{name: "UnknownSubjectKind", method: http.MethodGet, path: "/api/v1/subjects/widgets/x/tip", wantCode: http.StatusBadRequest},
		{name: "UnknownSubject", method: http.MethodGet, path: "/api/v1/subjects/variants/9-9-C-G/tip", wantCode: http.StatusNotFound},
		{name: "UnknownEvent", method: http.MethodGet, path: "/api/v1/events/00000000-0000-0000-0000-000000000000", wantCode: http.StatusNotFound},
		{name: "ProposeWithoutActor", method: http.MethodPost, path: "/api/v1/subjects/variants/" + variantID + "/events", body: map[string]any{"payload": map[string]any{"classification": 3}}, wantCode: http.StatusUnauthorized},
		{name: "ProposeUnknownActor", method: http.MethodPost, path: "/api/v1/subjects/variants/" + variantID + "/events", actor: "ghost@example.com", body: map[string]any{"payload": map[string]any{"classification": 3}}, wantCode: http.StatusNotFound},
		{name: "IllegalClassification", method: http.MethodPost, path: "/api/v1/subjects/variants/" + variantID + "/events", actor: scientist, body: map[string]any{"payload": map[string]any{"classification": 6}}, wantCode: http.StatusBadRequest},
		{name: "WrongEventKind", method: http.MethodPost, path: "/api/v1/subjects/variants/" + variantID + "/events", actor: scientist, body: map[string]any{"kind": "QualityControl", "payload": map[string]any{"passOrFail": true}}, wantCode: http.StatusBadRequest},
		{name: "SampleAcceptsNoEvents", method: http.MethodPost, path: "/api/v1/subjects/samples/S1/events", actor: scientist, body: map[string]any{"payload": map[string]any{"passOrFail": true}}, wantCode: http.StatusBadRequest},
		{name: "QCWithoutVerdict", method: http.MethodPost, path: "/api/v1/subjects/datasets/" + datasetID + "/events", actor: scientist, body: map[string]any{"payload": map[string]any{}}, wantCode: http.StatusBadRequest},
		{name: "QCMisspeltVerdict", method: http.MethodPost, path: "/api/v1/subjects/datasets/" + datasetID + "/events", actor: scientist, body: map[string]any{"payload": map[string]any{"pasOrFail": true}}, wantCode: http.StatusBadRequest},
		{name: "PreferenceWithoutVerdict", method: http.MethodPost, path: "/api/v1/subjects/features/ENST0001/events", actor: scientist, body: map[string]any{"payload": map[string]any{}}, wantCode: http.StatusBadRequest},
		{name: "UnknownPanel", method: http.MethodGet, path: "/api/v1/panels/P404", wantCode: http.StatusNotFound},
		{name: "UnknownSymbol", method: http.MethodGet, path: "/api/v1/symbols/TP53", wantCode: http.StatusNotFound},
		{name: "UnknownWorkflow", method: http.MethodPost, path: "/api/v1/workflows/common", body: map[string]any{}, wantCode: http.StatusNotFound},
		{name: "InvalidFilter", method: http.MethodGet, path: "/api/v1/events/pending?filter=" + url.QueryEscape("event.payload[?"), wantCode: http.StatusBadRequest},
		{name: "UnknownPendingKind", method: http.MethodGet, path: "/api/v1/events/pending?kind=Widget", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_RejectedVerdictLeavesChainEmpty(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rec := a.propose("datasets", datasetID, scientist, map[string]any{"evidence": "typo: pasOrFail"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = a.propose("features", "ENST0001", scientist, map[string]any{"evidence": "MANE select"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	for _, path := range []string{"/api/v1/subjects/datasets/" + datasetID, "/api/v1/subjects/features/ENST0001"} {
		rec = a.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, decode[models.SubjectInfo](t, rec).ChainLength, path)
	}

	rec = a.propose("features", "ENST0001", scientist, map[string]any{"preference": false})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAPI_PanelsAndSymbols(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rec := a.do(http.MethodGet, "/api/v1/panels", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	panels := decode[[]models.PanelInfo](t, rec)
	require.Len(t, panels, 1)
	assert.Equal(t, "P1", panels[0].Panel.Key)
	assert.Equal(t, scientist, panels[0].AddedBy.User.Email)
	assert.False(t, panels[0].AddedBy.Date.IsZero())

	rec = a.do(http.MethodGet, "/api/v1/panels/P1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	panel := decode[models.PanelInfo](t, rec)
	assert.Len(t, panel.Symbols, 2)

	rec = a.do(http.MethodGet, "/api/v1/symbols/BRCA1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	symbol := decode[models.SymbolInfo](t, rec)
	require.Len(t, symbol.Features, 1)
	assert.Equal(t, "ENST0001", symbol.Features[0].Key)
	require.Len(t, symbol.Panels, 1)
	assert.Equal(t, "P1", symbol.Panels[0].Key)
}

func TestAPI_PendingQueueFilter(t *testing.T) {
	a := newAPI(t)
	a.seed()

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/variants", "", map[string]any{"variantId": "2-200-G-C"}).Code)

	require.Equal(t, http.StatusCreated, a.propose("variants", variantID, scientist, map[string]any{"classification": 5}).Code)
	require.Equal(t, http.StatusCreated, a.propose("variants", "2-200-G-C", admin, map[string]any{"classification": 2}).Code)
	require.Equal(t, http.StatusCreated, a.propose("datasets", datasetID, scientist, map[string]any{"passOrFail": true}).Code)

	rec := a.do(http.MethodGet, "/api/v1/events/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)

	rec = a.do(http.MethodGet, "/api/v1/events/pending?kind=Pathogenicity", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)

	filter := url.QueryEscape("event.payload.classification >= `4`")
	rec = a.do(http.MethodGet, "/api/v1/events/pending?kind=Pathogenicity&filter="+filter, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode[[]map[string]any](t, rec)
	require.Len(t, queue, 1)
	assert.Equal(t, variantID, queue[0]["subject"].(map[string]any)["key"])

	filter = url.QueryEscape("event.addedBy.user.email == '" + admin + "'")
	rec = a.do(http.MethodGet, "/api/v1/events/pending?filter="+filter, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestAPI_WorkflowsAndDiagnostics(t *testing.T) {
	a := newAPI(t)
	a.seed()

	rec := a.do(http.MethodGet, "/api/v1/workflows", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decode[[]workflow.Info](t, rec)
	require.Len(t, infos, 1)
	assert.Equal(t, "Rare Variant Workflow v1", infos[0].Name)

	rec = a.do(http.MethodPost, "/api/v1/workflows/rare", "", map[string]any{"sampleId": "S1", "worklistId": "W1", "seqId": "Q1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	calls := decode[[]workflow.RareCall](t, rec)
	require.Len(t, calls, 1)
	assert.Equal(t, variantID, calls[0].VariantID)
	assert.Equal(t, 0, calls[0].Occurrence)

	rec = a.do(http.MethodGet, "/api/v1/system/diagnostics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[audit.Report](t, rec)
	assert.Empty(t, report.Findings)
	assert.Positive(t, report.ScannedVertices)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Authentication(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	cfg := &config.Config{AppName: "fern-test"}

	srv := New(cfg, NewServices(store, logger), logger, Options{Verifier: denyAll{}, Health: health.NewChecker("test")})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type denyAll struct{}

func (denyAll) Verify(context.Context, string) (*oidc.IDToken, error) {
	return nil, errors.New("token rejected")
}
