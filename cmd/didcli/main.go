package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/whyrusleeping/go-did-ledger/ledger"
	"github.com/whyrusleeping/go-did-ledger/node"
	"github.com/whyrusleeping/go-did-ledger/pool"
	"github.com/whyrusleeping/go-did-ledger/wallet"
)

const defaultWallet = ".ledger-wallet"

func main() {
	app := cli.NewApp()
	app.Name = "didcli"
	app.Usage = "manage ledger identities"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "pool",
			Usage:   "pool config file",
			Value:   "pool.yaml",
			EnvVars: []string{"LEDGER_POOL_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "wallet",
			Usage:   "wallet directory",
			Value:   defaultWallet,
			EnvVars: []string{"LEDGER_WALLET"},
		},
		&cli.BoolFlag{
			Name: "debug",
		},
	}

	app.Commands = []*cli.Command{
		createDIDCmd,
		buildNymCmd,
		buildGetNymCmd,
		submitCmd,
		signSubmitCmd,
		getNymCmd,
		resolveCmd,
		poolStatusCmd,
	}

	app.RunAndExitOnError()
}

func logger(cctx *cli.Context) *zap.Logger {
	if cctx.Bool("debug") {
		l, err := zap.NewDevelopment()
		if err == nil {
			return l
		}
	}

	return zap.NewNop()
}

func openWallet(cctx *cli.Context) (*wallet.Wallet, error) {
	store, err := wallet.OpenBadgerStore(cctx.String("wallet"))
	if err != nil {
		return nil, err
	}

	return wallet.New(store, wallet.WithLogger(logger(cctx))), nil
}

func openPool(cctx *cli.Context) (*pool.Pool, error) {
	cfg, err := pool.LoadConfig(cctx.String("pool"))
	if err != nil {
		return nil, err
	}

	return cfg.Open(pool.WithLogger(logger(cctx)))
}

// withLedger opens pool and wallet for the duration of fn.
func withLedger(cctx *cli.Context, fn func(l *ledger.Ledger) error) error {
	p, err := openPool(cctx)
	if err != nil {
		return err
	}

	w, err := openWallet(cctx)
	if err != nil {
		return err
	}
	defer w.Close()

	return fn(ledger.New(p, w, ledger.WithLogger(logger(cctx))))
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}

// readRequest takes the request from the first argument, or stdin for "-".
func readRequest(cctx *cli.Context) (string, error) {
	if !cctx.Args().Present() {
		return "", fmt.Errorf("must specify a request, or - to read it from stdin")
	}

	arg := cctx.Args().First()
	if arg != "-" {
		return arg, nil
	}

	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}

func newBuilder() *ledger.Builder {
	return ledger.NewBuilder(pool.NewSequence(uint64(time.Now().UnixNano())))
}

var createDIDCmd = &cli.Command{
	Name:  "create-did",
	Usage: "create a key in the wallet and print its DID and verkey",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "seed",
			Usage: "32 character or 64 hex digit seed",
		},
		&cli.StringFlag{
			Name:  "did",
			Usage: "store the key under this DID instead of the derived one",
		},
	},
	Action: func(cctx *cli.Context) error {
		w, err := openWallet(cctx)
		if err != nil {
			return err
		}
		defer w.Close()

		info, err := w.CreateAndStoreDID(cctx.Context, wallet.DIDParams{
			Seed: cctx.String("seed"),
			DID:  cctx.String("did"),
		})
		if err != nil {
			return err
		}

		return printJSON(info)
	},
}

var buildNymCmd = &cli.Command{
	Name:  "build-nym",
	Usage: "print an unsigned NYM request",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "submitter", Required: true},
		&cli.StringFlag{Name: "dest", Required: true},
		&cli.StringFlag{Name: "verkey"},
		&cli.StringFlag{Name: "alias"},
		&cli.StringFlag{
			Name:  "role",
			Usage: "TRUSTEE, STEWARD, TRUST_ANCHOR, ENDORSER, NETWORK_MONITOR, or empty to clear",
		},
	},
	Action: func(cctx *cli.Context) error {
		var opts []ledger.NymOption
		if cctx.IsSet("verkey") {
			opts = append(opts, ledger.WithVerkey(cctx.String("verkey")))
		}
		if cctx.IsSet("alias") {
			opts = append(opts, ledger.WithAlias(cctx.String("alias")))
		}
		if cctx.IsSet("role") {
			opts = append(opts, ledger.WithRole(cctx.String("role")))
		}

		req, err := newBuilder().BuildNymRequest(cctx.String("submitter"), cctx.String("dest"), opts...)
		if err != nil {
			return err
		}

		fmt.Println(req)
		return nil
	},
}

var buildGetNymCmd = &cli.Command{
	Name:  "build-get-nym",
	Usage: "print a GET_NYM request",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "submitter", Required: true},
		&cli.StringFlag{Name: "dest", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		req, err := newBuilder().BuildGetNymRequest(cctx.String("submitter"), cctx.String("dest"))
		if err != nil {
			return err
		}

		fmt.Println(req)
		return nil
	},
}

var submitCmd = &cli.Command{
	Name:      "submit",
	Usage:     "submit a request as is and print the reply",
	ArgsUsage: "<request json | ->",
	Action: func(cctx *cli.Context) error {
		req, err := readRequest(cctx)
		if err != nil {
			return err
		}

		return withLedger(cctx, func(l *ledger.Ledger) error {
			reply, err := l.SubmitRequestJSON(cctx.Context, req)
			if err != nil {
				return err
			}

			fmt.Println(reply)
			return nil
		})
	},
}

var signSubmitCmd = &cli.Command{
	Name:      "sign-submit",
	Usage:     "sign a request with a wallet key, submit it and print the reply",
	ArgsUsage: "<request json | ->",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "did", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		req, err := readRequest(cctx)
		if err != nil {
			return err
		}

		return withLedger(cctx, func(l *ledger.Ledger) error {
			reply, err := l.SignAndSubmitRequestJSON(cctx.Context, cctx.String("did"), req)
			if err != nil {
				return err
			}

			fmt.Println(reply)
			return nil
		})
	},
}

var getNymCmd = &cli.Command{
	Name:      "get-nym",
	Usage:     "read an identity from the ledger",
	ArgsUsage: "<did>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must specify a did")
		}

		return withLedger(cctx, func(l *ledger.Ledger) error {
			rec, err := l.GetNym(cctx.Context, cctx.Args().First())
			if err != nil {
				return err
			}

			return printJSON(rec)
		})
	},
}

var resolveCmd = &cli.Command{
	Name:      "resolve",
	Usage:     "print the DID document of a ledger identity",
	ArgsUsage: "<did>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must specify a did")
		}

		return withLedger(cctx, func(l *ledger.Ledger) error {
			doc, err := l.ResolveDID(cctx.Context, cctx.Args().First())
			if err != nil {
				return err
			}

			return printJSON(doc)
		})
	},
}

func statusURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + "/status"
	}

	return "http://" + addr + "/status"
}

func nodeStatus(ctx context.Context, n pool.Node) (*node.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL(n.Address), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed, status %d", resp.StatusCode)
	}

	var st node.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}

	return &st, nil
}

var poolStatusCmd = &cli.Command{
	Name:  "pool-status",
	Usage: "ask every node of the pool for its status",
	Action: func(cctx *cli.Context) error {
		p, err := openPool(cctx)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cctx.Context, p.Timeout())
		defer cancel()

		fmt.Printf("pool %s: %d nodes, tolerates %d faulty\n", p.Name(), p.Size(), p.F())

		for _, n := range p.Nodes() {
			st, err := nodeStatus(ctx, n)
			if err != nil {
				fmt.Printf("%s\t%s\tunreachable: %v\n", n.Name, n.Address, err)
				continue
			}

			fmt.Printf("%s\t%s\tnyms=%d seqNo=%d\n", n.Name, n.Address, st.Nyms, st.SeqNo)
		}

		return nil
	},
}
