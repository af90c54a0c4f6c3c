package launcher

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-bridge/flags"
)

var app = flags.NewApp("custodial bridge node")

func init() {
	app.Action = bridgeMain
	app.HideVersion = true
	app.Flags = flags.AllFlags()
	app.Commands = []cli.Command{
		dumpConfigCommand,
		genesisCommand,
		hashCommand,
		signCommand,
		accountCommand,
	}
}

// Launch runs the bridge command line with args.
func Launch(args []string) error {
	return app.Run(args)
}

// bridgeMain is the default action: it starts a node and blocks until an
// interrupt arrives.
func bridgeMain(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Node.Logging)
	if err != nil {
		return err
	}
	setupLogging(logger, cfg.Node.Logging.Verbosity)

	node, err := NewNode(cfg)
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		node.Stop()
		return err
	}
	head := node.host.Head()
	log.Info("Bridge node started", "name", cfg.Node.Name, "network", node.bridge.Rules().Name,
		"bridge", node.bridge.Address(), "validators", node.bridge.Validators().Len(), "head", head.Number)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	log.Info("Got interrupt, shutting down...")
	return node.Stop()
}
