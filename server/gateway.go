package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/n9te9/federation-router/config"
	"github.com/n9te9/federation-router/federation/source"
	"github.com/n9te9/federation-router/federation/subgraphclient"
	"github.com/n9te9/federation-router/gateway"
	"github.com/n9te9/federation-router/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const gatewayVersion = "v0.1.0"

// Run loads gateway.yaml, wires telemetry, and serves GraphQL requests until
// an interrupt or SIGTERM is received.
func Run() {
	cfg, err := config.Load("gateway.yaml")
	if err != nil {
		panic(fmt.Sprintf("failed to load gateway settings: %v", err))
	}

	logger, err := telemetry.NewLogger(cfg.ServiceName, false)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer logger.Sync()

	meterProvider, err := telemetry.InitMeter(cfg.ServiceName, firstExporter(cfg.Opentelemetry.Metrics.Exporters))
	if err != nil {
		logger.Fatal("failed to initialize meter provider", zap.Error(err))
	}
	defer meterProvider.Shutdown(context.Background())

	instruments, err := telemetry.NewInstruments(meterProvider.Meter)
	if err != nil {
		logger.Fatal("failed to build metric instruments", zap.Error(err))
	}

	opt, err := toGatewayOption(cfg, instruments)
	if err != nil {
		logger.Fatal("failed to resolve gateway settings", zap.Error(err))
	}

	gw, err := gateway.NewGateway(opt)
	if err != nil {
		logger.Fatal("failed to build gateway", zap.Error(err))
	}

	gwHandler := http.Handler(gw)
	if cfg.Opentelemetry.Tracing.Enable {
		gwHandler = otelhttp.NewHandler(http.Handler(gw), cfg.ServiceName)
	}

	mux := http.NewServeMux()
	// cfg.Endpoint may contain "{param}" segments (e.g. "/graphql/{tenant}");
	// ServeMux's own pattern matching resolves those without any extra
	// routing layer.
	mux.Handle(cfg.Endpoint, gwHandler)
	mux.Handle("/metrics", meterProvider.PrometheusMux)
	if cfg.Supergraph.Source == "registration" {
		mux.Handle("/schema/registration", gw.RegistrationHandler())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM)
	defer cancel()

	shutdown := telemetry.NoopShutdown
	if cfg.Opentelemetry.Tracing.Enable {
		shutdown, err = telemetry.InitTracer(ctx, cfg.ServiceName, gatewayVersion)
		if err != nil {
			logger.Fatal("failed to initialize tracer", zap.Error(err))
		}
	}

	go func() {
		logger.Info("starting gateway server", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("gateway server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	logger.Info("shutting down gateway server")
	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error("failed to shutdown gateway server cleanly", zap.Error(err))
	}

	if err := shutdown(timeoutCtx); err != nil {
		logger.Error("failed to shutdown tracer cleanly", zap.Error(err))
	}

	logger.Info("gateway server stopped")
}

func firstExporter(exporters []string) string {
	if len(exporters) == 0 {
		return "prometheus"
	}
	return exporters[0]
}

// toGatewayOption maps the resolved config onto the shape gateway.NewGateway
// expects. The two types diverge because GatewayOption predates the
// env-overlay config loader; kept separate so the gateway package stays
// free of YAML/env concerns.
func toGatewayOption(cfg *config.Config, instruments *telemetry.Instruments) (gateway.GatewayOption, error) {
	services := make([]gateway.GatewayService, 0, len(cfg.Supergraph.Files))
	files := make([]source.FileSpec, 0, len(cfg.Supergraph.Files))
	for _, f := range cfg.Supergraph.Files {
		services = append(services, gateway.GatewayService{
			Name:        f.Name,
			Host:        f.Host,
			SchemaFiles: f.Files,
		})
		files = append(files, source.FileSpec{
			SubgraphSpec: source.SubgraphSpec{Name: f.Name, Host: f.Host},
			Files:        f.Files,
		})
	}

	urlSpecs := make([]source.URLSpec, 0, len(cfg.Supergraph.Endpoints))
	for _, e := range cfg.Supergraph.Endpoints {
		endpoints := make([]source.Endpoint, 0, len(e.Endpoints))
		for _, ep := range e.Endpoints {
			requestTimeout, err := time.ParseDuration(ep.RequestTimeout)
			if err != nil {
				return gateway.GatewayOption{}, fmt.Errorf("subgraph %q: invalid request_timeout %q: %w", e.Name, ep.RequestTimeout, err)
			}
			connectTimeout, err := time.ParseDuration(ep.ConnectTimeout)
			if err != nil {
				return gateway.GatewayOption{}, fmt.Errorf("subgraph %q: invalid connect_timeout %q: %w", e.Name, ep.ConnectTimeout, err)
			}
			endpoints = append(endpoints, source.Endpoint{
				URL:                ep.URL,
				RequestTimeout:     requestTimeout,
				ConnectTimeout:     connectTimeout,
				AcceptInvalidCerts: ep.AcceptInvalidCerts,
				RetryAttempts:      ep.RetryAttempts,
			})
		}
		urlSpecs = append(urlSpecs, source.URLSpec{Name: e.Name, Endpoints: endpoints})
	}

	subgraphClients := make([]subgraphclient.Config, 0, len(cfg.Supergraph.Endpoints))
	for _, e := range cfg.Supergraph.Endpoints {
		for _, ep := range e.Endpoints {
			requestTimeout, _ := time.ParseDuration(ep.RequestTimeout)
			connectTimeout, _ := time.ParseDuration(ep.ConnectTimeout)
			host, err := hostOf(ep.URL)
			if err != nil {
				continue
			}
			subgraphClients = append(subgraphClients, subgraphclient.Config{
				Host:               host,
				RequestTimeout:     requestTimeout,
				ConnectTimeout:     connectTimeout,
				InsecureSkipVerify: ep.AcceptInvalidCerts,
				RetryAttempts:      ep.RetryAttempts,
			})
		}
	}

	var jwtOpt gateway.JWTOption
	if cfg.Auth.JWT.Enabled {
		jwtOpt = gateway.JWTOption{
			Enabled:   true,
			JWKSURL:   cfg.Auth.JWT.JWKSURL,
			PublicKey: []byte(cfg.Auth.JWT.PublicKey),
		}
	}

	return gateway.GatewayOption{
		Endpoint:                    cfg.Endpoint,
		ServiceName:                 cfg.ServiceName,
		Port:                        cfg.Port,
		TimeoutDuration:             cfg.TimeoutDuration,
		EnableHangOverRequestHeader: cfg.EnableHangOverRequestHeader,
		Services:                    services,
		Supergraph: gateway.SupergraphOption{
			Source:       cfg.Supergraph.Source,
			PollInterval: cfg.Supergraph.PollIntervalDuration(),
			Files:        files,
			Endpoints:    urlSpecs,
		},
		Limits:   cfg.Limits.Operation(),
		AuthMode: cfg.Auth.Mode(),
		JWT:      jwtOpt,
		PersistedDocuments: gateway.PersistedDocumentsOption{
			Enabled:        cfg.PersistedDocuments.Enabled,
			AllowArbitrary: cfg.PersistedDocuments.AllowArbitrary,
		},
		CacheMaxEntries: cfg.Cache.MaxEntries,
		SubgraphClients: subgraphClients,
		Opentelemetry: gateway.OpentelemetrySetting{
			TracingSetting: gateway.OpentelemetryTracingSetting{
				Enable: cfg.Opentelemetry.Tracing.Enable,
			},
		},
		Instruments: instruments,
	}, nil
}

// hostOf extracts the host:port a subgraph endpoint URL resolves to, the
// same key routingTransport keys its per-host policy by.
func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}
