package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/data/repos/testutil"
	httpH "github.com/icees-go/icees-api/internal/http/handlers"
	httpMW "github.com/icees-go/icees-api/internal/http/middleware"
	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/reasoner"
	"github.com/icees-go/icees-api/internal/services"
)

const testBins = `{"2010": {"patient": {"AvgDailyPM2.5Exposure": [1, 2, 3]}, "visit": {}}}`

func newTestRouter(t *testing.T, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.DB(t)
	testutil.LoadCSV(t, db, "patient", testutil.PatientRecords)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	log := testutil.Logger(t)
	cat := testutil.Catalog(t)
	bins, err := catalog.ParseBins([]byte(testBins))
	if err != nil {
		t.Fatalf("bins: %v", err)
	}
	metrics := observability.NewMetrics("icees_test")

	r := repos.New(db, cat, log)
	cohortCfg := config.CohortConfig{DefaultTable: "patient", MinSize: 10, MaxParallel: 2}
	assoc := services.NewAssociationService(log, r.Records, cat, nil, metrics, cohortCfg)
	cohorts := services.NewCohortService(log, r.Cohorts, r.Names, r.Records, cat, cohortCfg)
	svc := reasoner.NewService(log, cat, assoc, cohorts, metrics, config.ReasonerConfig{
		ToolVersion:  "ICEES test",
		InforesCurie: "infores:icees",
		MaxPairs:     100,
	}, "patient")

	return NewRouter(RouterConfig{
		Log:                log,
		Metrics:            metrics,
		MaxRequestBytes:    1 << 20,
		APIKey:             httpMW.NewAPIKeyMiddleware(log, apiKey, "api_key"),
		HealthHandler:      httpH.NewHealthHandler(sqlDB),
		CohortHandler:      httpH.NewCohortHandler(log, cohorts),
		AssociationHandler: httpH.NewAssociationHandler(log, cohorts, assoc),
		CatalogHandler:     httpH.NewCatalogHandler(cat, bins),
		ReasonerHandler:    httpH.NewReasonerHandler(log, svc),
	})
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// returnValue decodes a 200 {"return value": ...} response.
func returnValue(t *testing.T, rec *httptest.ResponseRecorder) any {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	v, ok := body["return value"]
	if !ok {
		t.Fatalf("missing return value: %s", rec.Body.String())
	}
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, "s3cret")
	if rec := do(t, r, http.MethodGet, "/healthcheck", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(t, r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "icees_test_http_requests_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestAPIKeyProtectsRoutes(t *testing.T) {
	r := newTestRouter(t, "s3cret")
	if rec := do(t, r, http.MethodGet, "/predicates", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("without key: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/predicates?api_key=s3cret", ""); rec.Code != http.StatusOK {
		t.Fatalf("with key: %d", rec.Code)
	}
}

func TestCohortRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	got := returnValue(t, do(t, r, http.MethodPost, "/patient/cohort", "{}")).(map[string]any)
	if got["cohort_id"] != "COHORT:1" || got["size"] != float64(15) {
		t.Fatalf("discover: %v", got)
	}
	// an empty body is the whole table too
	got = returnValue(t, do(t, r, http.MethodPost, "/patient/cohort", "")).(map[string]any)
	if got["cohort_id"] != "COHORT:1" {
		t.Fatalf("discover without body: %v", got)
	}

	msg := returnValue(t, do(t, r, http.MethodPost, "/patient/cohort?year=2011", "{}"))
	if msg != "Input features invalid or cohort ≤10 patients. Please try again." {
		t.Fatalf("small cohort: %v", msg)
	}
	if rec := do(t, r, http.MethodPost, "/patient/cohort?year=soon", "{}"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad year: %d", rec.Code)
	}

	edited := returnValue(t, do(t, r, http.MethodPut, "/patient/cohort/COHORT:1",
		`{"AgeStudyStart": {"operator": "=", "value": "0-2"}}`)).(map[string]any)
	if edited["size"] != float64(12) {
		t.Fatalf("edit: %v", edited)
	}

	def := returnValue(t, do(t, r, http.MethodGet, "/patient/cohort/COHORT:1", "")).(map[string]any)
	if _, ok := def["features"].(map[string]any)["AgeStudyStart"]; !ok {
		t.Fatalf("definition: %v", def)
	}
	if msg := returnValue(t, do(t, r, http.MethodGet, "/patient/cohort/COHORT:99", "")); msg != "Input cohort_id invalid. Please try again." {
		t.Fatalf("unknown cohort: %v", msg)
	}

	dict := returnValue(t, do(t, r, http.MethodGet, "/patient/cohort/dictionary", "")).([]any)
	if len(dict) != 1 {
		t.Fatalf("dictionary: %v", dict)
	}

	profile := returnValue(t, do(t, r, http.MethodGet, "/patient/cohort/COHORT:1/features", "")).([]any)
	if len(profile) != 6 {
		t.Fatalf("profile has %d features", len(profile))
	}
}

func TestNameRoutes(t *testing.T) {
	r := newTestRouter(t, "")
	returnValue(t, do(t, r, http.MethodPost, "/patient/cohort", "{}"))

	named := returnValue(t, do(t, r, http.MethodPost, "/patient/name/everyone", `{"cohort_id": "COHORT:1"}`)).(map[string]any)
	if named["name"] != "everyone" || named["cohort_id"] != "COHORT:1" {
		t.Fatalf("add name: %v", named)
	}
	if rec := do(t, r, http.MethodPost, "/patient/name/everyone", `{"cohort_id": "COHORT:1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate name: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/patient/name/other", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing cohort_id: %d", rec.Code)
	}
	got := returnValue(t, do(t, r, http.MethodGet, "/patient/name/everyone", "")).(map[string]any)
	if got["cohort_id"] != "COHORT:1" {
		t.Fatalf("get name: %v", got)
	}
	if rec := do(t, r, http.MethodGet, "/patient/name/nobody", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown name: %d", rec.Code)
	}
}

func TestAssociationRoutes(t *testing.T) {
	r := newTestRouter(t, "")
	returnValue(t, do(t, r, http.MethodPost, "/patient/cohort", "{}"))
	base := "/patient/cohort/COHORT:1"

	m := returnValue(t, do(t, r, http.MethodPost, base+"/feature_association", `{
		"feature_a": {"AsthmaDx": {"operator": "=", "value": 1}},
		"feature_b": {"ObesityDx": {"operator": "=", "value": 1}}
	}`)).(map[string]any)
	if m["total"] != float64(15) || len(m["feature_matrix"].([]any)) != 2 {
		t.Fatalf("feature_association: %v", m)
	}

	m = returnValue(t, do(t, r, http.MethodPost, base+"/feature_association2", `{
		"feature_a": {"AvgDailyPM2.5Exposure": [{"operator": "<", "value": 3}, {"operator": ">=", "value": 3}]},
		"feature_b": {"AsthmaDx": [{"operator": "=", "value": 0}, {"operator": "=", "value": 1}]},
		"check_coverage_is_full": true
	}`)).(map[string]any)
	if m["total"] != float64(15) {
		t.Fatalf("feature_association2: %v", m)
	}

	rec := do(t, r, http.MethodPost, base+"/feature_association2", `{
		"feature_a": {"AvgDailyPM2.5Exposure": [{"operator": "<", "value": 3}]},
		"feature_b": {"AsthmaDx": [{"operator": "=", "value": 1}]},
		"check_coverage_is_full": true
	}`)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"].(map[string]any)["code"] != "incomplete_coverage" {
		t.Fatalf("partial coverage: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, base+"/feature_association", `{
		"feature_a": {"AsthmaDx": {"operator": "=", "value": 1}},
		"feature_b": {"AsthmaDx": {"operator": "=", "value": 0}}
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("same feature: %d", rec.Code)
	}

	all := returnValue(t, do(t, r, http.MethodPost, base+"/associations_to_all_features", `{
		"feature": {"AsthmaDx": {"operator": "=", "value": 1}},
		"correction": {"method": "bonferroni"}
	}`)).([]any)
	if len(all) != 5 {
		t.Fatalf("associations_to_all_features: %d", len(all))
	}
	if _, ok := all[0].(map[string]any)["p_value_corrected"]; !ok {
		t.Fatalf("corrected p-value missing: %v", all[0])
	}

	if rec := do(t, r, http.MethodPost, base+"/associations_to_all_features2", `{
		"feature": {"AsthmaDx": [{"operator": "=", "value": 1}]}
	}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("maximum_p_value is required: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, base+"/associations_to_all_features", `{
		"feature": {"AsthmaDx": {"operator": "=", "value": 1}},
		"correction": {"method": "guess"}
	}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown correction: %d", rec.Code)
	}
	if msg := returnValue(t, do(t, r, http.MethodPost, "/patient/cohort/COHORT:7/feature_association", `{
		"feature_a": {"AsthmaDx": {"operator": "=", "value": 1}},
		"feature_b": {"ObesityDx": {"operator": "=", "value": 1}}
	}`)); msg != "Input cohort_id invalid. Please try again." {
		t.Fatalf("unknown cohort: %v", msg)
	}
}

func TestCatalogRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	ids := returnValue(t, do(t, r, http.MethodGet, "/patient/AsthmaDx/identifiers", "")).(map[string]any)["identifiers"].([]any)
	if len(ids) == 0 {
		t.Fatal("AsthmaDx has identifiers")
	}
	if rec := do(t, r, http.MethodGet, "/patient/Nope/identifiers", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown feature: %d", rec.Code)
	}

	rec := do(t, r, http.MethodGet, "/bins?year=2010&table=patient", "")
	body := decode(t, rec)
	bins, ok := body["return_value"].(map[string]any)
	if !ok || len(bins["AvgDailyPM2.5Exposure"].([]any)) != 3 {
		t.Fatalf("bins: %s", rec.Body.String())
	}
	if body := decode(t, do(t, r, http.MethodGet, "/bins?year=1999", "")); body["return_value"] != nil {
		t.Fatalf("unknown year: %v", body)
	}
}

const oneHopQuery = `{"message": {"query_graph": {
	"nodes": {"n0": {"ids": ["PUBCHEM:2083"]}, "n1": {"ids": ["MESH:D052638"]}},
	"edges": {"e0": {"subject": "n0", "object": "n1", "predicates": ["biolink:correlated_with"]}}
}}}`

func TestReasonerRoutes(t *testing.T) {
	r := newTestRouter(t, "")

	body := decode(t, do(t, r, http.MethodPost, "/query", oneHopQuery))
	msg := body["message"].(map[string]any)
	if len(msg["results"].([]any)) != 1 || body["message_code"] != reasoner.CodeOK {
		t.Fatalf("query: %v", body)
	}

	wrapped := returnValue(t, do(t, r, http.MethodPost, "/knowledge_graph", oneHopQuery)).(map[string]any)
	if _, ok := wrapped["message"]; !ok {
		t.Fatalf("knowledge_graph: %v", wrapped)
	}
	rec := do(t, r, http.MethodPost, "/knowledge_graph_one_hop?reasoner=false", oneHopQuery)
	returnValue(t, rec)
	if rec.Header().Get("Deprecation") != "true" {
		t.Fatal("one hop route is deprecated")
	}

	if rec := do(t, r, http.MethodPost, "/query?reasoner=maybe", oneHopQuery); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad flag: %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/query", `{"message": `); rec.Code != http.StatusBadRequest {
		t.Fatalf("truncated body: %d", rec.Code)
	}
	withWorkflow := strings.Replace(oneHopQuery, `{"message"`, `{"workflow": [{"id": "fill"}], "message"`, 1)
	if rec := do(t, r, http.MethodPost, "/query", withWorkflow); rec.Code != http.StatusBadRequest {
		t.Fatalf("workflow: %d", rec.Code)
	}

	// structural problems are reported in the envelope
	bad := decode(t, do(t, r, http.MethodPost, "/query", `{"message": {"query_graph": {"nodes": {}, "edges": {}}}}`))
	if bad["message_code"] == reasoner.CodeOK {
		t.Fatalf("empty graph accepted: %v", bad)
	}
}

func TestReasonerLegacyRoundTrip(t *testing.T) {
	r := newTestRouter(t, "")
	legacy := `{"message": {"query_graph": {
		"nodes": [{"id": "n00", "curie": "PUBCHEM:2083", "type": "chemical_substance"},
		          {"id": "n01", "curie": "MESH:D052638", "type": "chemical_substance"}],
		"edges": [{"id": "e00", "source_id": "n00", "target_id": "n01", "type": "correlated_with"}]
	}}}`
	rec := do(t, r, http.MethodPost, "/query", legacy)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp reasoner.LegacyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	kg := resp.Message.KnowledgeGraph
	if kg == nil || len(kg.Nodes) != 2 || len(kg.Edges) != 1 || kg.Edges[0].Type != "correlated_with" {
		t.Fatalf("legacy knowledge graph: %+v", kg)
	}
	if len(resp.Message.Results) != 1 || resp.Message.Results[0].EdgeBindings[0].QgID != "e00" {
		t.Fatalf("legacy results: %+v", resp.Message.Results)
	}
}

func TestOverlayRoute(t *testing.T) {
	r := newTestRouter(t, "")
	body := `{"message": {"knowledge_graph": {"nodes": {
		"PUBCHEM:2083": {"categories": ["biolink:ChemicalSubstance"]},
		"MONDO:0004979": {"categories": ["biolink:Disease"]}
	}, "edges": {}}}}`
	wrapped := returnValue(t, do(t, r, http.MethodPost, "/knowledge_graph_overlay", body)).(map[string]any)
	kg := wrapped["message"].(map[string]any)["knowledge_graph"].(map[string]any)
	if len(kg["edges"].(map[string]any)) != 1 {
		t.Fatalf("overlay edges: %v", kg["edges"])
	}
}

func TestSchemaRoutes(t *testing.T) {
	r := newTestRouter(t, "")
	preds := decode(t, do(t, r, http.MethodGet, "/predicates", ""))
	if len(preds) != len(reasoner.Categories) {
		t.Fatalf("predicates: %d categories", len(preds))
	}
	schema := returnValue(t, do(t, r, http.MethodGet, "/knowledge_graph/schema", "")).(map[string]any)
	if _, ok := schema[reasoner.CategoryPopulation]; !ok {
		t.Fatalf("schema: %v", schema)
	}
	bare := decode(t, do(t, r, http.MethodGet, "/knowledge_graph/schema?reasoner=true", ""))
	if _, ok := bare[reasoner.CategoryPopulation]; !ok {
		t.Fatalf("bare schema: %v", bare)
	}
}
