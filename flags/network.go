package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags select the bridge deployment the node starts from.

func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "genesis",
			Usage: "Genesis JSON file applied to an empty datadir",
		},
		cli.IntFlag{
			Name:  "fakenet",
			Usage: "Start a fake network of N validators with deterministic keys",
		},
	}
}

// SignerFlags select the validator key used by the sign command.
func SignerFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "key",
			Usage: "Encrypted validator key file",
		},
		PasswordFlag,
		cli.IntFlag{
			Name:  "fakekey",
			Usage: "Sign with fake validator N instead of a key file",
			Value: -1,
		},
	}
}

// PasswordFlag names the file holding a keystore password.
var PasswordFlag = cli.StringFlag{
	Name:  "password",
	Usage: "File holding the password of the validator key",
}
