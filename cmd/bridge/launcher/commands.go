package launcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-bridge/bridge/actionhash"
	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/bridge/signer"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/flags"
	"github.com/rony4d/go-opera-bridge/integration"
	"github.com/rony4d/go-opera-bridge/inter/validatorpk"
	"github.com/rony4d/go-opera-bridge/opera/genesis"
)

var outFlag = cli.StringFlag{
	Name:  "out",
	Usage: "Write to this file instead of stdout",
}

var dumpConfigCommand = cli.Command{
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	ArgsUsage:   "",
	Description: `The dumpconfig command shows the merged configuration values in TOML.`,
	Action:      dumpConfig,
}

var genesisCommand = cli.Command{
	Name:  "genesis",
	Usage: "Genesis document tools",
	Subcommands: []cli.Command{
		{
			Name:      "fake",
			Usage:     "Write the genesis of a fakenet of N validators",
			ArgsUsage: "<N>",
			Flags:     []cli.Flag{outFlag},
			Action:    fakeGenesis,
		},
		{
			Name:   "show",
			Usage:  "Show the genesis the datadir was created from",
			Flags:  []cli.Flag{outFlag},
			Action: showGenesis,
		},
	},
}

var hashCommand = cli.Command{
	Name:  "hash",
	Usage: "Compute the digest validators sign for a bridge action",
	Description: `The digests are bound to the network of --genesis, --fakenet or the
datadir, and to its current validator set.`,
	Subcommands: []cli.Command{
		{
			Name:   "validators",
			Usage:  "Digest of the current validator set",
			Action: hashValidators,
		},
		{
			Name:      "register",
			Usage:     "Digest approving a new wrapped asset",
			ArgsUsage: "<name> <precision>",
			Action:    hashRegister,
		},
		{
			Name:      "unlock",
			Usage:     "Digest approving a release of custody",
			ArgsUsage: "<recipient> <asset> <amount>",
			Action:    hashUnlock,
		},
	},
}

var signCommand = cli.Command{
	Name:      "sign",
	Usage:     "Sign an action digest as one validator",
	ArgsUsage: "<digest>",
	Flags:     flags.SignerFlags(),
	Description: `The sign command prints the signer and its signature in the JSON form
accepted by the bridge RPC methods.`,
	Action: signDigest,
}

var accountCommand = cli.Command{
	Name:  "account",
	Usage: "Manage validator keys",
	Subcommands: []cli.Command{
		{
			Name:   "new",
			Usage:  "Create a new validator key in the keystore",
			Flags:  []cli.Flag{flags.PasswordFlag},
			Action: accountNew,
		},
		{
			Name:   "list",
			Usage:  "List the validator keys of the keystore",
			Action: accountList,
		},
	},
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	return writeConfig(os.Stdout, &cfg)
}

// output returns the writer selected by --out and a func closing it.
func output(ctx *cli.Context) (*os.File, func() error, error) {
	path := ctx.String("out")
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func fakeGenesis(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: genesis fake <N>")
	}
	n, err := strconv.Atoi(ctx.Args().First())
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid validator count %q", ctx.Args().First())
	}
	w, closeOut, err := output(ctx)
	if err != nil {
		return err
	}
	if err := integration.FakeGenesis(n).Write(w); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func showGenesis(ctx *cli.Context) error {
	g, err := networkGenesis(ctx)
	if err != nil {
		return err
	}
	w, closeOut, err := output(ctx)
	if err != nil {
		return err
	}
	if err := g.Write(w); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

// networkGenesis returns the configured genesis, falling back to the one
// stored in the datadir.
func networkGenesis(ctx *cli.Context) (*genesis.Genesis, error) {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return nil, err
	}
	g, err := loadGenesis(&cfg)
	if err != nil || g != nil {
		return g, err
	}
	if cfg.Store.InMemory {
		return nil, errors.New("in-memory datadir: pass --genesis or --fakenet")
	}
	db, err := evmcore.OpenLevelDB(cfg.ChainDataDir(), cfg.Store.CacheMB, cfg.Store.Handles)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return evmcore.ReadGenesis(db)
}

func networkHasher(ctx *cli.Context) (*actionhash.Hasher, error) {
	g, err := networkGenesis(ctx)
	if err != nil {
		return nil, err
	}
	set, err := g.ValidatorSet()
	if err != nil {
		return nil, err
	}
	return actionhash.New(actionhash.DomainOf(g.Rules), set), nil
}

func hashValidators(ctx *cli.Context) error {
	h, err := networkHasher(ctx)
	if err != nil {
		return err
	}
	fmt.Println(h.HashCurrentValidators().Hex())
	return nil
}

func hashRegister(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: hash register <name> <precision>")
	}
	precision, err := strconv.ParseUint(ctx.Args().Get(1), 10, 8)
	if err != nil {
		return fmt.Errorf("invalid precision: %w", err)
	}
	h, err := networkHasher(ctx)
	if err != nil {
		return err
	}
	fmt.Println(h.HashNewAssetRegistration(ctx.Args().Get(0), uint8(precision)).Hex())
	return nil
}

func hashUnlock(ctx *cli.Context) error {
	if ctx.NArg() != 3 {
		return errors.New("usage: hash unlock <recipient> <asset> <amount>")
	}
	args := ctx.Args()
	for _, a := range args[:2] {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid address %q", a)
		}
	}
	amount, ok := math.ParseBig256(args.Get(2))
	if !ok {
		return fmt.Errorf("invalid amount %q", args.Get(2))
	}
	h, err := networkHasher(ctx)
	if err != nil {
		return err
	}
	digest, err := h.HashUnlock(common.HexToAddress(args.Get(0)), common.HexToAddress(args.Get(1)), amount)
	if err != nil {
		return err
	}
	fmt.Println(digest.Hex())
	return nil
}

func readPassword(path string) (string, error) {
	if path == "" {
		return "", errors.New("--password file is required")
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

func signingKey(ctx *cli.Context) (signer.Signer, error) {
	if n := ctx.Int("fakekey"); n >= 0 {
		return signer.FromKey(evmcore.FakeKey(uint64(n))), nil
	}
	path := ctx.String("key")
	if path == "" {
		return nil, errors.New("pass --key or --fakekey")
	}
	password, err := readPassword(ctx.String("password"))
	if err != nil {
		return nil, err
	}
	return signer.FromKeyFile(path, password)
}

type signOutput struct {
	Signer    common.Address   `json:"signer"`
	Digest    common.Hash      `json:"digest"`
	Signature quorum.Signature `json:"signature"`
}

func signDigest(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: sign <digest>")
	}
	raw, err := hexDigest(ctx.Args().First())
	if err != nil {
		return err
	}
	s, err := signingKey(ctx)
	if err != nil {
		return err
	}
	sig, err := s.Sign(raw)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(signOutput{Signer: s.Address(), Digest: raw, Signature: sig})
}

func hexDigest(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid digest %q", s)
	}
	return common.BytesToHash(b), nil
}

func openKeystore(ctx *cli.Context) (*keystore.KeyStore, error) {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return nil, err
	}
	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if cfg.Store.EnableLightKDF {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	return keystore.NewKeyStore(cfg.KeystoreDir(), scryptN, scryptP), nil
}

func accountNew(ctx *cli.Context) error {
	password, err := readPassword(ctx.String("password"))
	if err != nil {
		return err
	}
	ks, err := openKeystore(ctx)
	if err != nil {
		return err
	}
	account, err := ks.NewAccount(password)
	if err != nil {
		return err
	}
	keyjson, err := ioutil.ReadFile(account.URL.Path)
	if err != nil {
		return err
	}
	key, err := keystore.DecryptKey(keyjson, password)
	if err != nil {
		return err
	}
	pk := validatorpk.FromECDSA(crypto.FromECDSAPub(&key.PrivateKey.PublicKey))
	fmt.Printf("Address: %s\n", account.Address.Hex())
	fmt.Printf("Pubkey:  %s\n", pk.String())
	fmt.Printf("Keyfile: %s\n", account.URL.Path)
	return nil
}

func accountList(ctx *cli.Context) error {
	ks, err := openKeystore(ctx)
	if err != nil {
		return err
	}
	for i, account := range ks.Accounts() {
		fmt.Printf("#%d: %s %s\n", i, account.Address.Hex(), account.URL.Path)
	}
	return nil
}
