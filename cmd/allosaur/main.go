// Allosaur manages an accumulator stored in a local file: it adds and
// deletes members, hands out witnesses and updates, deals the trapdoor to
// replicas and creates and checks membership proofs.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.dedis.ch/allosaur"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3/log"
	"gopkg.in/urfave/cli.v1"
)

var cmds = cli.Commands{
	{
		Name:   "init",
		Usage:  "create a new accumulator with a fresh trapdoor",
		Action: initAcc,
	},
	{
		Name:      "add",
		Usage:     "add members in a single epoch",
		ArgsUsage: "name...",
		Aliases:   []string{"a"},
		Action:    add,
	},
	{
		Name:      "delete",
		Usage:     "delete members in a single epoch",
		ArgsUsage: "name...",
		Aliases:   []string{"d"},
		Action:    del,
	},
	{
		Name:      "witness",
		Usage:     "print the witness of a member",
		ArgsUsage: "name",
		Aliases:   []string{"w"},
		Action:    witness,
	},
	{
		Name:      "update",
		Usage:     "print the update polynomial between two epochs",
		ArgsUsage: "from to",
		Aliases:   []string{"u"},
		Action:    update,
	},
	{
		Name:      "prove",
		Usage:     "update a witness and print a membership proof",
		ArgsUsage: "witness",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "nonce, n",
				Usage: "the nonce chosen by the verifier",
			},
		},
		Action: prove,
	},
	{
		Name:      "verify",
		Usage:     "verify a membership proof against the current value",
		ArgsUsage: "proof",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "nonce, n",
				Usage: "the nonce of the proof",
			},
		},
		Action: verify,
	},
	{
		Name:      "deal",
		Usage:     "share the trapdoor among replicas",
		ArgsUsage: "replicas",
		Action:    deal,
	},
	{
		Name:    "status",
		Usage:   "show the state of the accumulator",
		Aliases: []string{"s"},
		Action:  status,
	},
}

func newApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Name = "allosaur"
	cliApp.Usage = "Manage a dynamic accumulator."
	cliApp.Version = "0.1"
	cliApp.Commands = cmds
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:   "config, c",
			Value:  "allosaur.toml",
			EnvVar: "ALLOSAUR_CONFIG",
			Usage:  "path to config-file",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	return cliApp
}

func main() {
	log.ErrFatal(newApp().Run(os.Args))
}

func getConfig(c *cli.Context) (*config, error) {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if c.GlobalInt("debug") == 0 && cfg.Debug > 0 {
		log.SetDebugVisible(cfg.Debug)
	}
	return cfg, nil
}

// withServer restores the accumulator of the config and runs f on it.
func withServer(c *cli.Context, f func(*config, *allosaur.Server, *accumulator.SecretKey) error) error {
	cfg, err := getConfig(c)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.dbPath()); os.IsNotExist(err) {
		return fmt.Errorf("no accumulator at %s, run init first", cfg.dbPath())
	}
	store, err := allosaur.OpenStore(cfg.dbPath())
	if err != nil {
		return err
	}
	defer store.Close()
	srv, td, err := store.Restore()
	if err != nil {
		return err
	}
	return f(cfg, srv, td)
}

func members(c *cli.Context) ([]accumulator.Element, error) {
	if c.NArg() == 0 {
		return nil, errors.New("please give at least one name")
	}
	var res []accumulator.Element
	for _, name := range c.Args() {
		res = append(res, accumulator.HashElement([]byte(name)))
	}
	return res, nil
}

func printHex(c *cli.Context, m interface{ MarshalBinary() ([]byte, error) }) error {
	buf, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hex.EncodeToString(buf))
	return nil
}

func initAcc(c *cli.Context) error {
	cfg, err := getConfig(c)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.path); os.IsNotExist(err) {
		if err := cfg.save(); err != nil {
			return err
		}
	}
	store, err := allosaur.OpenStore(cfg.dbPath())
	if err != nil {
		return err
	}
	defer store.Close()
	td := accumulator.NewSecretKey(random.New())
	if err := store.SaveTrapdoor(td); err != nil {
		return err
	}
	log.Lvl1("Created accumulator in", cfg.dbPath())
	return printHex(c, td.Public())
}

func add(c *cli.Context) error {
	list, err := members(c)
	if err != nil {
		return err
	}
	return withServer(c, func(_ *config, srv *allosaur.Server, td *accumulator.SecretKey) error {
		epoch, err := srv.Apply(td, list, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "epoch %d: %d members\n", epoch, srv.Size())
		return nil
	})
}

func del(c *cli.Context) error {
	list, err := members(c)
	if err != nil {
		return err
	}
	return withServer(c, func(_ *config, srv *allosaur.Server, td *accumulator.SecretKey) error {
		epoch, err := srv.Apply(td, nil, list)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "epoch %d: %d members\n", epoch, srv.Size())
		return nil
	})
}

func witness(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please give the name of the member")
	}
	y := accumulator.HashElement([]byte(c.Args().First()))
	return withServer(c, func(_ *config, srv *allosaur.Server, td *accumulator.SecretKey) error {
		w, err := srv.Wit(td, y)
		if err != nil {
			return err
		}
		return printHex(c, w)
	})
}

func update(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("please give the two epochs")
	}
	from, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
	if err != nil {
		return err
	}
	to, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return err
	}
	return withServer(c, func(_ *config, srv *allosaur.Server, td *accumulator.SecretKey) error {
		u, err := srv.Update(td, from, to)
		if err != nil {
			return err
		}
		return printHex(c, u)
	})
}

func decodeArg(c *cli.Context, what string, m interface{ UnmarshalBinary([]byte) error }) error {
	if c.NArg() != 1 {
		return fmt.Errorf("please give the %s", what)
	}
	buf, err := hex.DecodeString(c.Args().First())
	if err != nil {
		return fmt.Errorf("%s is not hex: %v", what, err)
	}
	return m.UnmarshalBinary(buf)
}

func prove(c *cli.Context) error {
	w := &allosaur.Witness{}
	if err := decodeArg(c, "witness", w); err != nil {
		return err
	}
	return withServer(c, func(_ *config, srv *allosaur.Server, td *accumulator.SecretKey) error {
		a, err := allosaur.NewAuthority(srv, td)
		if err != nil {
			return err
		}
		ctx := context.Background()
		if w.Epoch < srv.Epoch() {
			u, err := a.Update(ctx, w.Epoch, srv.Epoch())
			if err != nil {
				return err
			}
			if w, err = w.Update(u); err != nil {
				return err
			}
		}
		p, err := allosaur.Prove(w, srv.Public(), []byte(c.String("nonce")), random.New())
		if err != nil {
			return err
		}
		return printHex(c, p)
	})
}

func verify(c *cli.Context) error {
	p := &allosaur.Proof{}
	if err := decodeArg(c, "proof", p); err != nil {
		return err
	}
	return withServer(c, func(_ *config, srv *allosaur.Server, _ *accumulator.SecretKey) error {
		if !allosaur.VerifyProof(p, srv.Public(), []byte(c.String("nonce"))) {
			return errors.New("invalid proof")
		}
		fmt.Fprintln(c.App.Writer, "valid proof for epoch", srv.Epoch())
		return nil
	})
}

func deal(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please give the number of replicas")
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return err
	}
	return withServer(c, func(cfg *config, srv *allosaur.Server, td *accumulator.SecretKey) error {
		dealing, err := allosaur.DealTrapdoor(td, cfg.Threshold, n, cfg.MaxBatch, random.New())
		if err != nil {
			return err
		}
		for _, s := range dealing.Shares {
			if err := printHex(c, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func status(c *cli.Context) error {
	return withServer(c, func(cfg *config, srv *allosaur.Server, _ *accumulator.SecretKey) error {
		pub := srv.Public()
		key, err := pub.Key.MarshalBinary()
		if err != nil {
			return err
		}
		value, err := pub.Value.MarshalBinary()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "database: %s\nepoch: %d\nmembers: %d\nkey: %x\nvalue: %x\n",
			cfg.dbPath(), pub.Epoch, srv.Size(), key, value)
		return nil
	})
}
