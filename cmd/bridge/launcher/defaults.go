package launcher

import (
	"github.com/rony4d/go-opera-bridge/integration"
)

// Defaults bundles the baseline configuration values the launcher uses before
// presets, config files and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Network NetworkDefaults
	RPC     RPCDefaults
	Metrics MetricsDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings (datadir, identity, etc).
type NodeDefaults struct {
	DataDir string //	Filesystem root where the node stores everything (chaindata, keystore, ipc socket). Changing it lets you run multiple nodes or keep test data isolated.
	Name    string //	Human-readable node identity shown in logs; helps operators distinguish instances.
	Preset  string //	Name of the integration preset applied before the config file and flags.
}

// NetworkDefaults selects the deployment a fresh datadir is initialised with.
type NetworkDefaults struct {
	Genesis     string //	Path to a genesis JSON document. Only read when the datadir holds no state yet.
	FakeNetSize int    //	Number of deterministic validators of the fakenet helper; 0 disables it. The launcher derives the validator keys with evmcore.FakeKey so every fakenet node agrees on the set.
}

// RPCDefaults captures HTTP/WS/IPC options.
type RPCDefaults struct {
	EnableHTTP bool     //	Toggle for the JSON-RPC HTTP server.
	HTTPAddr   string   //	IP/interface the HTTP server binds to (0.0.0.0 for all interfaces or 127.0.0.1 for local-only).
	HTTPPort   int      //	TCP port clients connect to for HTTP RPC; 18545 avoids colliding with Geth's 8545.
	HTTPCors   []string //	Origins allowed to make cross-origin HTTP requests.

	EnableWS  bool     //	Toggle for the JSON-RPC WebSocket server; needed for bridge_subscribe.
	WSAddr    string   //	IP/interface the WebSocket server binds to.
	WSPort    int      //	TCP port clients connect to for WebSocket RPC.
	WSOrigins []string //	Origins allowed to open websocket connections.

	EnableIPC bool   //	Toggle for the local Unix-domain socket JSON-RPC server. It never leaves the machine, so it is the natural endpoint for the operator-only lock/unlock calls.
	IPCPath   string //	Socket file name, relative to the datadir unless absolute.
}

type MetricsDefaults struct {
	Enable   bool   //	Toggle for the metrics server; when true the node exposes Prometheus-compatible metrics on the specified IP/port.
	HTTPAddr string //	IP/interface the metrics server binds to.
	HTTPPort int    //	TCP port clients connect to for metrics; default 6060.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs (helpful on terminals, best disabled when piping to files).
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.opera-bridge",
			Name:    "opera-bridge",
			Preset:  integration.DefaultPreset().Name,
		},
		Network: NetworkDefaults{},
		RPC: RPCDefaults{
			EnableHTTP: false,
			HTTPAddr:   "127.0.0.1",
			HTTPPort:   18545,
			EnableWS:   false,
			WSAddr:     "127.0.0.1",
			WSPort:     18546,
			EnableIPC:  true,
			IPCPath:    "bridge.ipc",
		},
		Metrics: MetricsDefaults{
			Enable:   false,
			HTTPAddr: "127.0.0.1",
			HTTPPort: 6060,
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
	}
}
