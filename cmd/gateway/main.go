// Command gateway is the preconfirmation gateway's entry point: it wires
// together the execution-state cache, commitment state, relay proxy,
// fallback builder, commitment RPC, and event loop, then serves three HTTP
// ports (commitment RPC, relay proxy/builder API, metrics) until a
// termination signal arrives.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/blssign"
	"github.com/interstate-labs/preconf-gateway/commitment"
	"github.com/interstate-labs/preconf-gateway/constraintstore"
	"github.com/interstate-labs/preconf-gateway/delegationstore"
	"github.com/interstate-labs/preconf-gateway/elclient"
	"github.com/interstate-labs/preconf-gateway/eventloop"
	"github.com/interstate-labs/preconf-gateway/execstate"
	"github.com/interstate-labs/preconf-gateway/fallbackbuilder"
	"github.com/interstate-labs/preconf-gateway/keystore"
	gwlog "github.com/interstate-labs/preconf-gateway/log"
	"github.com/interstate-labs/preconf-gateway/metrics"
	"github.com/interstate-labs/preconf-gateway/preflight"
	"github.com/interstate-labs/preconf-gateway/relayclient"
	"github.com/interstate-labs/preconf-gateway/relayproxy"
	"github.com/interstate-labs/preconf-gateway/rpcapi"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

// run is the actual entry point, returning a process exit code.
func run() int {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	log.Printf("preconf-gateway %s (commit %s) starting", version, commit)
	log.Printf("  chain:          %s", cfg.Chain)
	log.Printf("  commitment port: %d", cfg.CommitmentPort)
	log.Printf("  builder port:    %d", cfg.BuilderPort)
	log.Printf("  metrics port:    %d", cfg.MetricsPort)
	log.Printf("  relays:          %v", cfg.RelayURLs)
	log.Printf("  commitment deadline: %dms", cfg.CommitmentDeadlineMs)
	log.Printf("  slot time:           %ds", cfg.SlotTimeSeconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		log.Printf("Failed to initialize gateway: %v", err)
		return 1
	}
	defer app.execClient.Close()

	app.start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	cancel()
	app.shutdown()
	log.Println("shutdown complete")
	return 0
}

// application bundles every running HTTP server and background task so
// run can start and stop them uniformly.
type application struct {
	cfg Config

	execClient *elclient.Client
	beacon     *beaconclient.Client
	loop       *eventloop.Loop

	commitmentSrv *http.Server
	builderSrv    *http.Server
	metricsSrv    *http.Server
}

func newApplication(ctx context.Context, cfg Config) (*application, error) {
	registry := metrics.NewRegistry()
	apiMetrics := metrics.NewApiMetrics(registry)

	beacon := beaconclient.New(cfg.BeaconAPIURL)

	execClient, err := elclient.NewClient(ctx, elclient.Config{
		ExecutionAPIURL: cfg.ExecutionAPIURL,
		EngineAPIURL:    cfg.EngineAPIURL,
		JWTSecret:       cfg.JWTSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("dial execution/engine clients: %w", err)
	}

	execState := execstate.New(execClient)
	commitState := commitment.New(beacon, time.Duration(cfg.CommitmentDeadlineMs)*time.Millisecond)

	// Seed commitment and execution state against the current head before
	// serving any traffic, so the first requests aren't rejected for lack
	// of proposer duties or account data.
	head, err := beacon.HeadHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch initial head: %w", err)
	}
	if err := commitState.UpdateHead(ctx, head.Slot); err != nil {
		return nil, fmt.Errorf("seed commitment state: %w", err)
	}
	if _, err := execState.UpdateHead(ctx, nil); err != nil {
		return nil, fmt.Errorf("seed execution state: %w", err)
	}

	genesisTime, err := beacon.GenesisTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch genesis time: %w", err)
	}

	validator, err := preflight.New(execState, preflight.DefaultLimits(), cfg.Chain.ChainID(), targetBlockGasLimit)
	if err != nil {
		return nil, fmt.Errorf("build preflight validator: %w", err)
	}
	delegations := delegationstore.New()
	constraints := constraintstore.New()

	relays := make([]*relayclient.Relay, 0, len(cfg.RelayURLs))
	for _, url := range cfg.RelayURLs {
		relays = append(relays, relayclient.New(url, url, relayClientTimeout))
	}

	builder := fallbackbuilder.New(execClient, beacon, constraints, cfg.FeeRecipient, genesisTime, cfg.SlotTimeSeconds)

	proxyCfg := relayproxy.DefaultConfig()
	proxyCfg.GenesisTimeUnix = genesisTime
	proxyCfg.SlotTimeSeconds = cfg.SlotTimeSeconds
	proxy := relayproxy.New(relays, constraints, delegations, builder, proxyCfg, apiMetrics)

	signer, localPubkeys, err := loadSigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}

	rpc := rpcapi.New(preconfQueueCapacity, apiMetrics)

	loop := eventloop.New(eventloop.Config{
		Jobs:         rpc.Jobs(),
		Commitment:   commitState,
		Exec:         execState,
		Validator:    validator,
		Delegations:  delegations,
		Signer:       signer,
		LocalPubkeys: localPubkeys,
		Relays:       relays,
		Proxy:        proxy,
		Beacon:       beacon,
		Chain:        cfg.Chain,
		Metrics:      apiMetrics,
	})

	promExporter := metrics.NewPrometheusExporter(registry, metrics.DefaultPrometheusConfig())

	return &application{
		cfg:        cfg,
		execClient: execClient,
		beacon:     beacon,
		loop:       loop,
		commitmentSrv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.CommitmentPort),
			Handler: rpc.Handler(),
		},
		builderSrv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.BuilderPort),
			Handler: proxy.Handler(),
		},
		metricsSrv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: promExporter.Handler(),
		},
	}, nil
}

const (
	relayClientTimeout = 3 * time.Second

	preconfQueueCapacity = 256

	// targetBlockGasLimit mirrors mainnet's execution gas limit target;
	// preflight caps each transaction's gas limit at it and prices the
	// remaining block space against it.
	targetBlockGasLimit = 30_000_000
)

func (app *application) start(ctx context.Context) {
	go app.loop.Run(ctx)
	go serveOrLog(app.commitmentSrv, "commitment RPC")
	go serveOrLog(app.builderSrv, "relay proxy")
	go serveOrLog(app.metricsSrv, "metrics")
}

func serveOrLog(srv *http.Server, name string) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		gwlog.Error("http server exited", "server", name, "error", err)
	}
}

func (app *application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{app.commitmentSrv, app.builderSrv, app.metricsSrv} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			gwlog.Warn("http server shutdown error", "error", err)
		}
	}
}

// loadSigner builds a local BLS signer from the configured keystore
// directories. A deployment with neither path set runs relay-proxy-only,
// signing nothing locally.
func loadSigner(cfg Config) (blssign.Signer, []blssign.PublicKey, error) {
	if !cfg.hasLocalSigningKeys() {
		return blssign.NewLocalSigner(nil), nil, nil
	}

	// KEYSTORE_SECRETS_PATH holds the encrypted EIP-2335 keystore files
	// (each embeds its own pubkey); KEYSTORE_PUBKEYS_PATH holds the
	// sibling passphrase files, named by the pubkey they unlock.
	keys, err := keystore.LoadAll(keystore.Config{
		KeystoresDir:   cfg.KeystoreSecretsPath,
		PassphrasesDir: cfg.KeystorePubkeysPath,
	})
	if err != nil {
		return nil, nil, err
	}
	pubkeys := make([]blssign.PublicKey, 0, len(keys))
	for pk := range keys {
		pubkeys = append(pubkeys, pk)
	}
	return blssign.NewLocalSigner(keys), pubkeys, nil
}
