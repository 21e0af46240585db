package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/n9te9/federation-router/federation/executor"
	"github.com/n9te9/federation-router/federation/operation"
	"github.com/n9te9/federation-router/federation/plancache"
	"github.com/n9te9/federation-router/federation/planner"
	"github.com/n9te9/federation-router/federation/projector"
	"github.com/n9te9/federation-router/federation/source"
	"github.com/n9te9/federation-router/federation/subgraphclient"
	"github.com/n9te9/federation-router/telemetry"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// GatewayService is one statically-configured subgraph, the "file" source
// shorthand GatewayOption accepts for simple single-process deployments and
// tests; richer topologies go through Supergraph.
type GatewayService struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files"`
}

// JWTOption configures bearer-token verification for the authorization
// filter.
type JWTOption struct {
	Enabled         bool
	JWKSURL         string
	PublicKey       []byte
	RefreshInterval time.Duration
}

// PersistedDocumentsOption configures persisted-document lookup at the
// request orchestrator.
type PersistedDocumentsOption struct {
	Enabled        bool
	AllowArbitrary bool
}

// SupergraphOption selects and configures the supergraph source. An empty
// Source defaults to "file", composed at startup from Files (or from Services
// when Files is empty) and recomposed on every tick when PollInterval is
// non-zero.
type SupergraphOption struct {
	Source       string
	PollInterval time.Duration
	Files        []source.FileSpec
	Endpoints    []source.URLSpec
}

// GatewayOption is the fully-resolved configuration gateway.NewGateway
// needs, deliberately free of YAML/env concerns (that's config.Config's
// job; server.Run maps one onto the other).
type GatewayOption struct {
	Endpoint                    string
	ServiceName                 string
	Port                        int
	TimeoutDuration             string
	EnableHangOverRequestHeader bool
	Services                    []GatewayService

	Supergraph         SupergraphOption
	Limits             operation.Limits
	AuthMode           operation.Mode
	JWT                JWTOption
	PersistedDocuments PersistedDocumentsOption
	CacheMaxEntries    int
	SubgraphClients    []subgraphclient.Config

	Opentelemetry OpentelemetrySetting
	Instruments   *telemetry.Instruments
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

// gateway serves GraphQL-over-HTTP requests, running every parsed operation
// through the operation pipeline (parse, validate, normalize, complexity
// limits, authorization filter), the plan cache, the query planner, the
// plan executor, and the response projector, against a hot-swappable
// supergraph snapshot.
type gateway struct {
	graphQLEndpoint string
	serviceName     string

	publisher *source.Publisher
	pool      *subgraphclient.Pool
	planCache *plancache.Cache
	verifier  *operation.Verifier

	limits             operation.Limits
	authMode           operation.Mode
	persistedDocuments PersistedDocumentsOption
	instruments        *telemetry.Instruments

	enableComplementRequestId   bool
	enableHangOverRequestHeader bool
	enableOpentelemetryTracing  bool
}

var _ http.Handler = (*gateway)(nil)

// NewGateway builds a gateway and performs the initial supergraph build.
// The "url" source, and the file source with a non-zero poll interval, also
// start a background poller that keeps the snapshot current. The
// "registration" source builds nothing up front; ServeHTTP answers 503 until
// the first snapshot lands.
func NewGateway(settings GatewayOption) (*gateway, error) {
	publisher := source.NewPublisher()

	pool := subgraphclient.NewPool(settings.SubgraphClients)
	if settings.Opentelemetry.TracingSetting.Enable {
		pool.WrapTransport(func(rt http.RoundTripper) http.RoundTripper {
			return otelhttp.NewTransport(rt)
		})
	}

	planCache, err := plancache.NewCache(settings.CacheMaxEntries, settings.Instruments)
	if err != nil {
		return nil, err
	}

	verifier, err := buildVerifier(settings.JWT, pool.HTTPClient())
	if err != nil {
		return nil, err
	}

	g := &gateway{
		graphQLEndpoint:             settings.Endpoint,
		serviceName:                 settings.ServiceName,
		publisher:                   publisher,
		pool:                        pool,
		planCache:                   planCache,
		verifier:                    verifier,
		limits:                      settings.Limits,
		authMode:                    settings.AuthMode,
		persistedDocuments:          settings.PersistedDocuments,
		instruments:                 settings.Instruments,
		enableComplementRequestId:   true,
		enableHangOverRequestHeader: settings.EnableHangOverRequestHeader,
		enableOpentelemetryTracing:  settings.Opentelemetry.TracingSetting.Enable,
	}

	if err := g.buildInitialSnapshot(settings); err != nil {
		return nil, err
	}

	// Discard the cache on every reload: a stale plan may route to a field
	// or subgraph the new supergraph no longer has.
	go func() {
		for range publisher.OnReload() {
			planCache.Purge()
		}
	}()

	return g, nil
}

func buildVerifier(jwtOpt JWTOption, httpClient *http.Client) (*operation.Verifier, error) {
	if !jwtOpt.Enabled {
		return nil, nil
	}

	if jwtOpt.JWKSURL != "" {
		kf := operation.JWKSKeyFunc(jwtOpt.JWKSURL, httpClient, refreshIntervalOrDefault(jwtOpt.RefreshInterval))
		return operation.NewVerifier(kf, operation.NewClaimCache(5*time.Second)), nil
	}

	kf, err := operation.StaticKeyFunc(jwtOpt.PublicKey)
	if err != nil {
		return nil, err
	}
	return operation.NewVerifier(kf, operation.NewClaimCache(5*time.Second)), nil
}

func refreshIntervalOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return time.Minute
}

// buildInitialSnapshot synchronously builds and publishes the first
// snapshot from the configured source, and starts a background poller for
// sources that support hot-reload.
func (g *gateway) buildInitialSnapshot(settings GatewayOption) error {
	switch settings.Supergraph.Source {
	case "url":
		src := source.NewURLSource(g.publisher, settings.Supergraph.Endpoints, settings.Supergraph.PollInterval)
		if err := src.Reload(context.Background()); err != nil {
			return err
		}
		go src.Run(context.Background())
		return nil

	case "registration":
		// A registration source publishes only as registrations arrive;
		// there is no initial snapshot to build, so ServeHTTP answers 503
		// until the first subgraph registers.
		return nil

	default:
		files := settings.Supergraph.Files
		if len(files) == 0 {
			files = servicesToFileSpecs(settings.Services)
		}
		src := source.NewFileSource(g.publisher, files, settings.Supergraph.PollInterval)
		if err := src.Reload(); err != nil {
			return err
		}
		if settings.Supergraph.PollInterval > 0 {
			go src.Run(context.Background())
		}
		return nil
	}
}

func servicesToFileSpecs(services []GatewayService) []source.FileSpec {
	specs := make([]source.FileSpec, 0, len(services))
	for _, s := range services {
		specs = append(specs, source.FileSpec{
			SubgraphSpec: source.SubgraphSpec{Name: s.Name, Host: s.Host},
			Files:        s.SchemaFiles,
		})
	}
	return specs
}

// RegistrationHandler returns an http.Handler accepting subgraph join
// announcements at /schema/registration, for mounting alongside the
// gateway's own GraphQL endpoint when Supergraph.Source == "registration".
func (g *gateway) RegistrationHandler() http.Handler {
	return source.NewRegistrationSource(g.publisher)
}

// Start serves the gateway directly on port, for simple deployments that
// don't need server.Run's graceful shutdown and registration-endpoint
// mounting.
func (g *gateway) Start(port int) error {
	return http.ListenAndServe(fmt.Sprintf(":%d", port), g)
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions"`
}

func (r *graphQLRequest) persistedDocumentID() (string, bool) {
	if ext, ok := r.Extensions["persistedQuery"].(map[string]any); ok {
		if id, ok := ext["sha256Hash"].(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := g.publisher.Load()
	if snapshot == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeErrors(w, "supergraph is loading", "SERVICE_UNAVAILABLE")
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := checkCSRF(r); err != nil {
		w.WriteHeader(http.StatusForbidden)
		writeErrors(w, err.Error(), "CSRF_PREVENTION")
		return
	}

	bodyLen := int(r.ContentLength)
	if bodyLen > 0 {
		if err := operation.CheckBodySize(bodyLen, g.limits); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			writeErrors(w, err.Error(), "REQUEST_BODY_TOO_LARGE")
			return
		}
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeErrors(w, err.Error(), "BAD_REQUEST")
		return
	}

	if req.Query == "" {
		if id, ok := req.persistedDocumentID(); ok {
			if !g.persistedDocuments.Enabled {
				w.WriteHeader(http.StatusBadRequest)
				writeErrors(w, "persisted documents are not enabled", "PERSISTED_QUERY_NOT_SUPPORTED")
				return
			}
			_ = id // lookup store is not wired yet: every request with a doc_id currently misses.
			w.WriteHeader(http.StatusBadRequest)
			writeErrors(w, "persisted query not found", "PERSISTED_QUERY_NOT_FOUND")
			return
		}
		if g.persistedDocuments.Enabled && !g.persistedDocuments.AllowArbitrary {
			w.WriteHeader(http.StatusBadRequest)
			writeErrors(w, "arbitrary operations are not allowed", "PERSISTED_QUERY_ONLY")
			return
		}
	}

	ctx := r.Context()
	if g.enableHangOverRequestHeader {
		ctx = executor.SetRequestHeaderToContext(ctx, r.Header)
	}

	claims := g.authenticate(r)

	doc, err := operation.Parse(req.Query)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{err.Error()}})
		return
	}

	if err := operation.ValidateAccessibility(doc, snapshot.SuperGraph); err != nil {
		writeFieldError(w, err, "INACCESSIBLE_FIELD")
		return
	}

	if err := operation.CheckComplexity(req.Query, doc, g.limits); err != nil {
		writeFieldError(w, err, "COMPLEXITY_LIMIT")
		return
	}

	doc = operation.Normalize(doc)

	removed, err := operation.Authorize(doc, snapshot.SuperGraph, claims, g.authMode)
	if err != nil {
		writeFieldError(w, err, "UNAUTHORIZED")
		return
	}

	fingerprint := plancache.Fingerprint(req.Query, req.OperationName, req.Variables)
	plan, err := g.planCache.GetOrBuild(ctx, fingerprint, func() (*planner.PlanV2, error) {
		return planner.NewPlannerV2(snapshot.SuperGraph).Plan(doc, req.Variables)
	})
	if err != nil {
		writeFieldError(w, err, "PLAN_ERROR")
		return
	}

	ex := executor.NewExecutorV2(g.pool.HTTPClient(), snapshot.SuperGraph).WithInstruments(g.instruments)
	data, headers, err := ex.ExecuteWithHeaders(ctx, plan, req.Variables)
	if err != nil {
		writeFieldError(w, err, "FETCH_ERROR")
		return
	}

	if g.enableHangOverRequestHeader {
		hangOverHeaders(w.Header(), headers)
	}

	projectStart := time.Now()
	projected, err := projector.Project(doc, data)
	if g.instruments != nil && g.instruments.ProjectorDuration != nil {
		g.instruments.ProjectorDuration.Record(ctx, time.Since(projectStart).Seconds())
	}
	if err != nil {
		writeFieldError(w, err, "PROJECTION_ERROR")
		return
	}

	response := map[string]any{"data": projected}
	if len(removed) > 0 {
		response["errors"] = unauthorizedErrors(removed)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (g *gateway) authenticate(r *http.Request) *operation.Claims {
	if g.verifier == nil {
		return nil
	}
	token, ok := operation.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil
	}
	return claims
}

// checkCSRF rejects browser-originated simple requests (those whose
// Content-Type a <form> can send without a preflight) unless an
// approved header is present, the same mitigation the teacher's
// CORS-adjacent deployments relied on reverse proxies for.
func checkCSRF(r *http.Request) error {
	if r.Header.Get("Apollo-Require-Preflight") != "" || r.Header.Get("X-Requested-With") != "" {
		return nil
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0]))
	switch contentType {
	case "application/json", "":
		return nil
	default:
		return errCSRF
	}
}

var errCSRF = &csrfError{}

type csrfError struct{}

func (*csrfError) Error() string {
	return "request must set Content-Type: application/json or an approved preflight-triggering header"
}

func hangOverHeaders(dst http.Header, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

func writeErrors(w http.ResponseWriter, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{
			{"message": message, "extensions": map[string]string{"code": code}},
		},
	})
}

func writeFieldError(w http.ResponseWriter, err error, code string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{
			{"message": err.Error(), "extensions": map[string]string{"code": code}},
		},
	})
}

func unauthorizedErrors(removed []operation.UnauthorizedField) []map[string]any {
	errs := make([]map[string]any, 0, len(removed))
	for _, f := range removed {
		errs = append(errs, map[string]any{
			"message":    "not authorized",
			"path":       f.Path,
			"extensions": map[string]string{"code": "UNAUTHORIZED"},
		})
	}
	return errs
}
