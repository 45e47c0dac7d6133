// Command gatewayd runs the natural-language data-access gateway: it
// loads configuration, wires every configured backend adapter, and
// serves the HTTP surfaces in server.Server. Startup and graceful
// shutdown follow the teacher corpus's pattern (xentoshi-lake's
// api/main.go): signal-driven shutdown, a bounded drain window, explicit
// ordering of what stops before what.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qdrant/go-client/qdrant"

	"github.com/opsdata-io/gateway/adapter"
	"github.com/opsdata-io/gateway/availability"
	"github.com/opsdata-io/gateway/config"
	"github.com/opsdata-io/gateway/credstore"
	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/obs"
	"github.com/opsdata-io/gateway/orchestrator"
	"github.com/opsdata-io/gateway/server"
	"github.com/opsdata-io/gateway/slackindex"
	"github.com/opsdata-io/gateway/tools"
	"github.com/opsdata-io/gateway/toolexec"
)

func main() {
	log := obs.InitLogger(getenv("LOG_FORMAT", "text"), getenv("LOG_LEVEL", "info"))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed loading configuration", "error", err)
		os.Exit(2)
	}

	// Registers the gateway_* collectors against the default registry so
	// they're exposed on /metrics, and threads the instance into the tool
	// registry and orchestrator so every execution records its outcome.
	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	llmClient, err := buildLLMClient()
	if err != nil {
		log.Error("failed constructing LLM client", "error", err)
		os.Exit(2)
	}

	registry := tools.New(llmClient).WithMetrics(metrics)
	var backends []availability.Backend
	var defaultAdapter adapter.Adapter
	var shopifyAdapter *adapter.ShopifyAdapter

	ctx := context.Background()

	// config.Load always allocates the Postgres/Qdrant/Shopify sections
	// (applyEnvOverrides seeds them for env-var overrides even when the
	// YAML file omits them), so presence is judged by whether a field
	// was actually populated, not by a nil check.
	if cfg.Postgres != nil && (cfg.Postgres.URI != "" || cfg.Postgres.Host != "") {
		a, err := adapter.NewPostgresAdapter(ctx, buildURI(cfg.Postgres, "postgres"), llmClient)
		if err != nil {
			log.Warn("postgres adapter unavailable", "error", err)
		} else {
			registerAdapter(registry, &backends, a, "postgres", &defaultAdapter, cfg.DefaultDatabase)
		}
	}
	if cfg.Mongo != nil && (cfg.Mongo.URI != "" || cfg.Mongo.Host != "") {
		a, err := adapter.NewMongoAdapter(ctx, buildURI(cfg.Mongo, "mongodb"), cfg.Mongo.Database, llmClient)
		if err != nil {
			log.Warn("mongodb adapter unavailable", "error", err)
		} else {
			registerAdapter(registry, &backends, a, "mongodb", &defaultAdapter, cfg.DefaultDatabase)
		}
	}
	if cfg.Qdrant != nil && cfg.Qdrant.Host != "" {
		a, err := adapter.NewQdrantAdapter(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Qdrant.PreferGRPC, llmClient)
		if err != nil {
			log.Warn("qdrant adapter unavailable", "error", err)
		} else {
			registerAdapter(registry, &backends, a, "qdrant", &defaultAdapter, cfg.DefaultDatabase)
		}
	}
	if cfg.GA4 != nil && cfg.GA4.PropertyID != "" {
		a := adapter.NewGA4Adapter(cfg.GA4.PropertyID, os.Getenv("GA4_API_KEY"), llmClient)
		registerAdapter(registry, &backends, a, "ga4", &defaultAdapter, cfg.DefaultDatabase)
	}
	if cfg.Shopify != nil && cfg.Shopify.ClientID != "" {
		shopifyAdapter = buildShopifyAdapter(cfg, llmClient, log)
		if shopifyAdapter != nil {
			registerAdapter(registry, &backends, shopifyAdapter, "shopify", &defaultAdapter, cfg.DefaultDatabase)
		}
	}

	sink := toolexec.NewMemorySink(1000)
	node := toolexec.NewNode(registry, llmClient, sink)

	var orch *orchestrator.Orchestrator
	if defaultAdapter != nil {
		orch, err = orchestrator.New(defaultAdapter.ConnectionURI(), orchestrator.Options{DBType: defaultAdapter.DBType()}, buildAdapterFactory(defaultAdapter, llmClient))
		if err != nil {
			log.Warn("default orchestrator unavailable", "error", err)
		} else {
			orch.WithMetrics(metrics)
		}
	}

	credDir, err := credstore.DefaultDir()
	if err != nil {
		log.Error("failed resolving credential directory", "error", err)
		os.Exit(2)
	}
	cipherSecret := getenv("GATEWAY_TOKEN_SECRET", "")
	var cipher *credstore.Cipher
	if cipherSecret != "" {
		cipher, err = credstore.NewCipher(cipherSecret)
		if err != nil {
			log.Error("failed constructing token cipher", "error", err)
			os.Exit(2)
		}
	}
	credentials := credstore.NewStore(credDir, cipher)
	bearer := credstore.NewBearerMinter(getenv("GATEWAY_JWT_SECRET", cipherSecret))
	sessions := credstore.NewSessionStore()

	monitor := availability.NewMonitor(backends)

	var indexer *slackindex.Indexer
	var indexStore *slackindex.Store
	var scheduler *slackindex.Scheduler
	if cfg.Slack != nil {
		indexer, indexStore, scheduler = buildSlackIndexing(cfg, llmClient, credentials, log)
	}

	srv := server.NewServer(server.Deps{
		Registry:   registry,
		Node:       node,
		Orch:       orch,
		Shopify:    shopifyAdapter,
		Credstore:  credentials,
		Bearer:     bearer,
		Sessions:   sessions,
		Indexer:    indexer,
		IndexStore: indexStore,
		Monitor:    monitor,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	go monitor.Run(runCtx)
	if scheduler != nil {
		go scheduler.Run(runCtx)
	}

	httpServer := &http.Server{
		Addr:         ":" + getenv("PORT", "8080"),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsServer *http.Server
	if metricsAddr := getenv("METRICS_ADDR", ":9090"); metricsAddr != "" {
		listener, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			log.Warn("failed starting metrics listener", "error", err)
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer = &http.Server{Handler: mux}
			go func() {
				if err := metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	go func() {
		log.Info("gatewayd starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutting down", "signal", sig.String())

	cancel() // stop background monitor/scheduler loops

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown error", "error", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildLLMClient() (llm.Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return llm.NewFakeClient(), nil
	}
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  apiKey,
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	})
}

// registerAdapter discovers the adapter's tools, adds it to the
// availability backend list, and promotes it to the default single-
// adapter orchestrator target when its db_type matches config's
// default_database.
func registerAdapter(registry *tools.Registry, backends *[]availability.Backend, a adapter.Adapter, name string, defaultAdapter *adapter.Adapter, defaultDBType string) {
	registry.DiscoverAdapterTools(a)
	*backends = append(*backends, availability.Backend{Name: name, Prober: a})
	if a.DBType() == defaultDBType || *defaultAdapter == nil {
		*defaultAdapter = a
	}
}

// buildAdapterFactory returns an orchestrator.AdapterFactory that reuses
// the already-constructed backend adapter for its own db_type (avoiding a
// second connection to the same backend) and otherwise dials a fresh one
// on demand, matching the orchestrator's contract of instantiating
// exactly one adapter from a resolved db_type and URI (spec §4.4).
func buildAdapterFactory(preferred adapter.Adapter, llmClient llm.Client) orchestrator.AdapterFactory {
	return func(dbType, uri string, opts orchestrator.Options) (adapter.Adapter, error) {
		if preferred != nil && preferred.DBType() == dbType {
			return preferred, nil
		}
		ctx := context.Background()
		switch dbType {
		case "postgres":
			return adapter.NewPostgresAdapter(ctx, uri, llmClient)
		case "mongodb":
			return adapter.NewMongoAdapter(ctx, uri, "", llmClient)
		case "qdrant":
			parsed, err := url.Parse(uri)
			if err != nil {
				return nil, errs.New(errs.ConfigInvalid, "invalid qdrant connection URI", err)
			}
			port, _ := strconv.Atoi(parsed.Port())
			apiKey := ""
			if parsed.User != nil {
				apiKey, _ = parsed.User.Password()
			}
			return adapter.NewQdrantAdapter(parsed.Hostname(), port, apiKey, strings.TrimPrefix(parsed.Path, "/"), false, llmClient)
		default:
			return adapter.NewHTTPGatewayAdapter(uri, dbType), nil
		}
	}
}

func buildURI(section *config.DatabaseSection, scheme string) string {
	if section.URI != "" {
		return section.URI
	}
	uri := scheme + "://"
	if section.User != "" {
		uri += section.User
		if section.Password != "" {
			uri += ":" + section.Password
		}
		uri += "@"
	}
	uri += section.Host
	if section.Port != 0 {
		uri += portSuffix(section.Port)
	}
	if section.Database != "" {
		uri += "/" + section.Database
	}
	if scheme == "mongodb" && section.AuthSource != "" {
		uri += "?authSource=" + section.AuthSource
	}
	return uri
}

func portSuffix(port int) string {
	return ":" + strconv.Itoa(port)
}

func buildShopifyAdapter(cfg *config.Config, llmClient llm.Client, log *slog.Logger) *adapter.ShopifyAdapter {
	credDir, err := credstore.DefaultDir()
	if err != nil {
		log.Warn("shopify credential directory unavailable", "error", err)
		return nil
	}
	store := credstore.NewStore(credDir, nil)
	shops, err := store.LoadShopifyCredentials()
	if err != nil || len(shops) == 0 {
		log.Warn("no shopify credentials on disk; shopify adapter not started")
		return nil
	}
	for domain, rec := range shops {
		token, err := store.DecryptShopToken(rec)
		if err != nil {
			log.Warn("failed decrypting shopify token", "shop", domain, "error", err)
			continue
		}
		return adapter.NewShopifyAdapter(domain, token, cfg.Shopify.APIVersion, cfg.Shopify.WebhookSecret, rec.GrantedScopes, rec.RequestedScopes, llmClient)
	}
	return nil
}

func buildSlackIndexing(cfg *config.Config, llmClient llm.Client, credentials *credstore.Store, log *slog.Logger) (*slackindex.Indexer, *slackindex.Store, *slackindex.Scheduler) {
	if cfg.Qdrant == nil {
		log.Warn("slack indexing configured but no qdrant section present; skipping")
		return nil, nil, nil
	}
	qc, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Qdrant.Host, Port: cfg.Qdrant.Port, APIKey: cfg.Qdrant.APIKey})
	if err != nil {
		log.Warn("qdrant client unavailable for slack indexing", "error", err)
		return nil, nil, nil
	}

	store := slackindex.NewStore()
	indexer := slackindex.NewIndexer(qc, llmClient, store)
	source := staticWorkspaceSource{credentials: credentials, historyDays: cfg.Slack.HistoryDays}
	scheduler := slackindex.NewScheduler(indexer, source)
	return indexer, store, scheduler
}

// staticWorkspaceSource adapts the credential store's persisted
// workspace list into the slackindex.WorkspaceSource the scheduler
// polls every tick. slack_credentials.json carries no bot token field
// (spec §6.2) — bot tokens only exist in the HTTP server's in-memory
// association map, filled in by the OAuth callback at request time, so
// a workspace discovered here before its first callback round trip
// will reindex with an empty token. ProcessWorkspace logs and aborts
// that run rather than propagating the failure (spec §5), so this is a
// startup-ordering limitation rather than a crash risk.
type staticWorkspaceSource struct {
	credentials *credstore.Store
	historyDays int
}

func (src staticWorkspaceSource) DueWorkspaces(ctx context.Context) ([]slackindex.WorkspaceConfig, error) {
	_, workspaces, err := src.credentials.LoadSlackCredentials()
	if err != nil {
		return nil, err
	}
	out := make([]slackindex.WorkspaceConfig, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, slackindex.WorkspaceConfig{
			WorkspaceID: strconv.Itoa(ws.ID),
			HistoryDays: src.historyDays,
		})
	}
	return out, nil
}
