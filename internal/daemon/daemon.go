package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/threefoldtech/substrate-research/internal/api"
	"github.com/threefoldtech/substrate-research/internal/chain"
	"github.com/threefoldtech/substrate-research/internal/domain"
	_ "github.com/threefoldtech/substrate-research/internal/infra/metrics" // Register Prometheus metrics
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
	"github.com/threefoldtech/substrate-research/internal/oracle"
	"github.com/threefoldtech/substrate-research/internal/pallet"
	"github.com/threefoldtech/substrate-research/internal/security"
)

// Daemon is the node runtime. It wires the store, the marketplace
// pallet, block production, the oracle worker and the HTTP API.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Pallet  *pallet.Pallet
	Pool    *chain.Pool
	Node    *chain.Node
	Oracle  *oracle.Worker
	Server  *api.Server
	Keypair *security.Keypair

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	db, err := sqlite.Open(griddHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Crypto identity (Ed25519). The same key signs oracle extrinsics.
	kp, err := security.LoadOrCreateKeypair(griddHome())
	if err != nil {
		log.Printf("[daemon] WARNING: failed to load keypair: %v (oracle signing disabled)", err)
	}

	p := pallet.New()
	if cfg.Chain.MinimumBalance > 0 {
		p.MinimumBalance = cfg.Chain.MinimumBalance
	}
	for _, a := range cfg.Chain.OracleAccounts {
		p.OracleAccounts = append(p.OracleAccounts, domain.AccountID(a))
	}

	pool := chain.NewPool(cfg.Chain.PoolCapacity)
	node := chain.NewNode(db, p, pool, chain.SystemClock{}, cfg.Chain.Interval())

	d := &Daemon{
		Config:  cfg,
		DB:      db,
		Pallet:  p,
		Pool:    pool,
		Node:    node,
		Keypair: kp,
	}

	if cfg.Oracle.Enabled {
		explorer := oracle.NewExplorer(cfg.Oracle.ExplorerURL)
		d.Oracle = oracle.NewWorker(db, explorer, pool, kp, chain.SystemClock{})
		node.OnBlock(d.Oracle.RunForBlock)
	}

	srv := api.NewServer(db, pool)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Serve starts block production and the HTTP server, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go func() {
		if err := d.Node.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("[daemon] block producer: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("gridd serving on http://%s\n", addr)
	if d.Keypair != nil {
		fmt.Printf("  Account: %s\n", d.Keypair.AccountID())
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
