package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-opera-bridge/bridge"
	"github.com/rony4d/go-opera-bridge/bridgeapi"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/integration"
	"github.com/rony4d/go-opera-bridge/opera/genesis"
)

// Node is a running bridge node: the world state, the bridge over it and the
// endpoints serving it.
type Node struct {
	cfg    Config
	db     ethdb.Database
	host   *evmcore.State
	bridge *bridge.Bridge

	rpc         *rpc.Server
	ipc         *rpc.Server
	ipcListener net.Listener
	servers     []*http.Server

	quit chan struct{}
	wg   sync.WaitGroup
}

// openDatabase opens the state database the config asks for.
func openDatabase(cfg *Config) (ethdb.Database, error) {
	if cfg.Store.InMemory {
		return rawdb.NewMemoryDatabase(), nil
	}
	return evmcore.OpenLevelDB(cfg.ChainDataDir(), cfg.Store.CacheMB, cfg.Store.Handles)
}

// loadGenesis returns the genesis to apply to an empty database, or nil when
// the config names none.
func loadGenesis(cfg *Config) (*genesis.Genesis, error) {
	switch {
	case cfg.Network.Genesis != "":
		return genesis.Load(cfg.Network.Genesis)
	case cfg.Network.FakeNet > 0:
		return integration.FakeGenesis(cfg.Network.FakeNet), nil
	}
	return nil, nil
}

// openState opens the world state, applying the configured genesis to an empty
// database. It also returns the genesis the state was created from.
func openState(cfg *Config, db ethdb.Database) (*evmcore.State, *genesis.Genesis, error) {
	host, err := evmcore.Open(db)
	if errors.Is(err, evmcore.ErrNoGenesis) {
		g, err := loadGenesis(cfg)
		if err != nil {
			return nil, nil, err
		}
		if g == nil {
			return nil, nil, errors.New("empty datadir: pass --genesis or --fakenet")
		}
		host, err = evmcore.ApplyGenesis(db, g)
		if err != nil {
			return nil, nil, err
		}
		return host, g, nil
	}
	if err != nil {
		return nil, nil, err
	}

	g, err := evmcore.ReadGenesis(db)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Network.Genesis != "" || cfg.Network.FakeNet > 0 {
		log.Warn("Datadir already initialised, ignoring genesis flags", "network", g.Rules.Name)
	}
	return host, g, nil
}

// NewNode opens the state and creates the bridge; nothing is served until
// Start.
func NewNode(cfg Config) (*Node, error) {
	if !cfg.Store.InMemory || cfg.Node.RPC.EnableIPC {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return nil, err
		}
	}
	db, err := openDatabase(&cfg)
	if err != nil {
		return nil, err
	}
	host, g, err := openState(&cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	set, err := g.ValidatorSet()
	if err != nil {
		host.Close()
		return nil, err
	}
	return &Node{
		cfg:    cfg,
		db:     db,
		host:   host,
		bridge: bridge.New(host, g.Rules, set),
		quit:   make(chan struct{}),
	}, nil
}

// Bridge returns the bridge served by the node.
func (n *Node) Bridge() *bridge.Bridge {
	return n.bridge
}

// Start serves the configured endpoints and starts the background loops.
func (n *Node) Start() error {
	apis := bridgeapi.APIs(n.bridge)
	n.rpc = rpc.NewServer()
	for _, api := range apis {
		if err := n.rpc.RegisterName(api.Namespace, api.Service); err != nil {
			return err
		}
	}

	rpcCfg := n.cfg.Node.RPC
	if rpcCfg.HTTPEnabled {
		addr := fmt.Sprintf("%s:%d", rpcCfg.HTTPAddr, rpcCfg.HTTPPort)
		if err := n.serve(addr, withCors(n.rpc, rpcCfg.HTTPCors), rpcCfg.Timeout); err != nil {
			return err
		}
		log.Info("HTTP server started", "endpoint", addr)
	}
	if rpcCfg.EnableWS {
		addr := fmt.Sprintf("%s:%d", rpcCfg.WSAddr, rpcCfg.WSPort)
		if err := n.serve(addr, n.rpc.WebsocketHandler(rpcCfg.WSOrigins), 0); err != nil {
			return err
		}
		log.Info("WebSocket enabled", "url", "ws://"+addr)
	}
	if rpcCfg.EnableIPC {
		listener, srv, err := rpc.StartIPCEndpoint(n.cfg.IPCEndpoint(), apis)
		if err != nil {
			return err
		}
		n.ipcListener, n.ipc = listener, srv
		log.Info("IPC endpoint opened", "url", n.cfg.IPCEndpoint())
	}
	if n.cfg.Metrics.Enabled {
		if !metrics.Enabled {
			log.Warn("Metrics collection is off; start the process with --metrics to record bridge meters")
		}
		addr := fmt.Sprintf("%s:%d", n.cfg.Metrics.HTTPAddr, n.cfg.Metrics.HTTPPort)
		mux := http.NewServeMux()
		mux.Handle("/debug/metrics/prometheus", prometheus.Handler(metrics.DefaultRegistry))
		if err := n.serve(addr, mux, 0); err != nil {
			return err
		}
		log.Info("Starting metrics server", "addr", fmt.Sprintf("http://%s/debug/metrics/prometheus", addr))
	}

	events := make(chan bridge.Event, 256)
	sub := n.bridge.SubscribeEvents(events)
	n.wg.Add(2)
	go n.watchEvents(events, sub.Err())
	go n.commitLoop()
	return nil
}

func withCors(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed["*"] || allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (n *Node) serve(addr string, h http.Handler, timeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h, ReadTimeout: timeout, WriteTimeout: timeout}
	n.servers = append(n.servers, srv)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "addr", addr, "err", err)
		}
	}()
	return nil
}

// watchEvents logs every bridge event.
func (n *Node) watchEvents(events <-chan bridge.Event, errc <-chan error) {
	defer n.wg.Done()
	for {
		select {
		case e := <-events:
			log.Info("Bridge event", "seq", e.Seq, "kind", e.Kind, "asset", e.Asset, "amount", e.Amount, "recipient", e.Recipient, "name", e.Name)
		case <-errc:
			return
		case <-n.quit:
			return
		}
	}
}

// commitLoop persists state and events at the configured interval.
func (n *Node) commitLoop() {
	defer n.wg.Done()
	interval := n.cfg.Store.CommitInterval
	if interval <= 0 {
		interval = integration.DefaultPreset().CommitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.commit()
		case <-n.quit:
			return
		}
	}
}

// commit queues behind the RPC requests in flight, which share the bridge's
// Serial queue.
func (n *Node) commit() {
	var h evmcore.Header
	err := n.bridge.Serial(func() (err error) {
		h, err = n.bridge.Commit()
		return err
	})
	if err != nil {
		log.Error("Failed to commit bridge state", "err", err)
		return
	}
	log.Debug("Committed bridge state", "number", h.Number, "root", h.Root, "events", h.Events)
}

// Stop shuts the endpoints down, persists the final state and closes the
// database.
func (n *Node) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range n.servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("HTTP server shutdown", "err", err)
		}
	}
	if n.ipcListener != nil {
		n.ipcListener.Close()
		n.ipc.Stop()
	}
	if n.rpc != nil {
		n.rpc.Stop()
	}

	close(n.quit)
	n.wg.Wait()
	n.commit()
	n.bridge.Close()
	return n.host.Close()
}
