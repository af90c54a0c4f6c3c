package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance (identity, storage, keys).

func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name shown in logs",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to the state database cache",
			Value: 512,
		},
		cli.IntFlag{
			Name:  "handles",
			Usage: "Number of file handles the state database may open",
			Value: 256,
		},
		cli.DurationFlag{
			Name:  "commit.interval",
			Usage: "How often state and events are persisted",
		},
		cli.BoolFlag{
			Name:  "lightkdf",
			Usage: "Reduce key-derivation hardness (faster account unlock, insecure for prod)",
		},
		cli.StringFlag{
			Name:  "keystore",
			Usage: "Directory for storing encrypted validator keys (defaults to <datadir>/keystore)",
		},
		cli.StringFlag{
			Name:  "datadir.chaindata",
			Usage: "Override path to the state DB (defaults to <datadir>/chaindata)",
		},
	}
}
