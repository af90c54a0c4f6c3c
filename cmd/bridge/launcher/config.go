// This file maps CLI context and TOML config files to the launcher Config.

package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-bridge/integration"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig
	Store   integration.PresetConfig
	Network NetworkConfig
	Metrics MetricsConfig
}

type NodeConfig struct {
	DataDir   string
	Name      string
	Keystore  string // defaults to <datadir>/keystore
	ChainData string // defaults to <datadir>/chaindata
	RPC       RPCConfig
	Logging   LoggingConfig
}

type RPCConfig struct {
	HTTPEnabled bool
	HTTPAddr    string
	HTTPPort    int
	HTTPCors    []string

	EnableWS  bool
	WSAddr    string
	WSPort    int
	WSOrigins []string

	EnableIPC bool
	IPCPath   string

	Timeout time.Duration
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type NetworkConfig struct {
	Genesis string
	FakeNet int
}

type MetricsConfig struct {
	Enabled  bool
	HTTPAddr string
	HTTPPort int
}

// ChainDataDir returns the directory of the state database.
func (c *Config) ChainDataDir() string {
	if c.Node.ChainData != "" {
		return c.Node.ChainData
	}
	return filepath.Join(c.Node.DataDir, "chaindata")
}

// KeystoreDir returns the directory of encrypted validator keys.
func (c *Config) KeystoreDir() string {
	if c.Node.Keystore != "" {
		return c.Node.Keystore
	}
	return filepath.Join(c.Node.DataDir, "keystore")
}

// IPCEndpoint returns the IPC socket path.
func (c *Config) IPCEndpoint() string {
	if filepath.IsAbs(c.Node.RPC.IPCPath) {
		return c.Node.RPC.IPCPath
	}
	return filepath.Join(c.Node.DataDir, c.Node.RPC.IPCPath)
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			Name:    d.Node.Name,
			RPC: RPCConfig{
				HTTPEnabled: d.RPC.EnableHTTP,
				HTTPAddr:    d.RPC.HTTPAddr,
				HTTPPort:    d.RPC.HTTPPort,
				HTTPCors:    d.RPC.HTTPCors,
				EnableWS:    d.RPC.EnableWS,
				WSAddr:      d.RPC.WSAddr,
				WSPort:      d.RPC.WSPort,
				WSOrigins:   d.RPC.WSOrigins,
				EnableIPC:   d.RPC.EnableIPC,
				IPCPath:     d.RPC.IPCPath,
				Timeout:     30 * time.Second,
			},
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
			},
		},
		Store: integration.DefaultPreset(),
		Network: NetworkConfig{
			Genesis: d.Network.Genesis,
			FakeNet: d.Network.FakeNetSize,
		},
		Metrics: MetricsConfig{
			Enabled:  d.Metrics.Enable,
			HTTPAddr: d.Metrics.HTTPAddr,
			HTTPPort: d.Metrics.HTTPPort,
		},
	}
}

// MakeAllConfigs merges defaults, the selected preset, the optional config
// file and finally CLI overrides into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if name := ctx.GlobalString("preset"); name != "" {
		preset, err := integration.GetPresetByName(name)
		if err != nil {
			return cfg, err
		}
		integration.ApplyPreset(&cfg.Store, preset)
		cfg.Metrics.Enabled = cfg.Metrics.Enabled || preset.EnableMetrics
	}

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if cfg.Network.Genesis != "" && cfg.Network.FakeNet > 0 {
		return cfg, errors.New("--genesis and --fakenet are mutually exclusive")
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

// tomlSettings keeps Go field names as TOML keys and rejects unknown ones.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

func loadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// add the file name to errors that carry a line number
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

// writeConfig encodes cfg as TOML.
func writeConfig(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}
	if ctx.GlobalIsSet("keystore") {
		cfg.Node.Keystore = resolvePath(ctx.GlobalString("keystore"))
	}
	if ctx.GlobalIsSet("datadir.chaindata") {
		cfg.Node.ChainData = resolvePath(ctx.GlobalString("datadir.chaindata"))
	}

	if ctx.GlobalBool("http") {
		cfg.Node.RPC.HTTPEnabled = true
	}
	if ctx.GlobalIsSet("http.addr") {
		cfg.Node.RPC.HTTPAddr = ctx.GlobalString("http.addr")
	}
	if ctx.GlobalIsSet("http.port") {
		cfg.Node.RPC.HTTPPort = ctx.GlobalInt("http.port")
	}
	if ctx.GlobalIsSet("http.corsdomain") {
		cfg.Node.RPC.HTTPCors = splitCSV(ctx.GlobalString("http.corsdomain"))
	}
	if ctx.GlobalBool("ws") {
		cfg.Node.RPC.EnableWS = true
	}
	if ctx.GlobalIsSet("ws.addr") {
		cfg.Node.RPC.WSAddr = ctx.GlobalString("ws.addr")
	}
	if ctx.GlobalIsSet("ws.port") {
		cfg.Node.RPC.WSPort = ctx.GlobalInt("ws.port")
	}
	if ctx.GlobalIsSet("ws.origins") {
		cfg.Node.RPC.WSOrigins = splitCSV(ctx.GlobalString("ws.origins"))
	}
	if ctx.GlobalIsSet("ipc") {
		cfg.Node.RPC.EnableIPC = ctx.GlobalBool("ipc")
	}
	if ctx.GlobalIsSet("ipc.path") {
		cfg.Node.RPC.IPCPath = ctx.GlobalString("ipc.path")
	}
	if ctx.GlobalIsSet("rpc.timeout") {
		cfg.Node.RPC.Timeout = ctx.GlobalDuration("rpc.timeout")
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Node.Logging.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if ctx.GlobalBool("metrics") {
		cfg.Metrics.Enabled = true
	}
	if ctx.GlobalIsSet("metrics.addr") {
		cfg.Metrics.HTTPAddr = ctx.GlobalString("metrics.addr")
	}
	if ctx.GlobalIsSet("metrics.port") {
		cfg.Metrics.HTTPPort = ctx.GlobalInt("metrics.port")
	}

	if ctx.GlobalIsSet("cache") {
		cfg.Store.CacheMB = ctx.GlobalInt("cache")
	}
	if ctx.GlobalIsSet("handles") {
		cfg.Store.Handles = ctx.GlobalInt("handles")
	}
	if ctx.GlobalIsSet("commit.interval") {
		cfg.Store.CommitInterval = ctx.GlobalDuration("commit.interval")
	}
	if ctx.GlobalIsSet("lightkdf") {
		cfg.Store.EnableLightKDF = ctx.GlobalBool("lightkdf")
	}

	if ctx.GlobalIsSet("genesis") {
		cfg.Network.Genesis = resolvePath(ctx.GlobalString("genesis"))
	}
	if ctx.GlobalIsSet("fakenet") {
		cfg.Network.FakeNet = ctx.GlobalInt("fakenet")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
