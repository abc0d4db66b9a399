// Allonode runs an onet server with the Allosaur service and administrates
// it. Start the server with the configuration created by the onet setup:
//
//	./allonode -c private.toml server
//
// then make it the authority of a new accumulator, from the same machine:
//
//	./allonode create private.toml
//
// Adding --metrics localhost:9100 before the server command also serves the
// prometheus metrics.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.dedis.ch/allosaur/service"
	"go.dedis.ch/onet/v3/app"
	"go.dedis.ch/onet/v3/cfgpath"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/network"
	"gopkg.in/urfave/cli.v1"
)

const (
	// DefaultName is the name of the binary and of its config directory.
	DefaultName = "allonode"

	// Version of this binary
	Version = "0.1"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = DefaultName
	cliApp.Usage = "run and administrate an accumulator node"
	cliApp.Version = Version
	serverFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: filepath.Join(cfgpath.GetConfigPath(DefaultName), app.DefaultServerConfig),
			Usage: "configuration file of the server",
		},
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:  "metrics, m",
			Usage: "address to serve the prometheus metrics on, like localhost:9100",
		},
	}

	cliApp.Commands = []cli.Command{
		{
			Name:  "server",
			Usage: "Start the server",
			Action: func(c *cli.Context) error {
				runServer(c.GlobalString("config"), c.GlobalString("metrics"))
				return nil
			},
		},
		{
			Name:      "create",
			Usage:     "Make the node the authority of a new accumulator",
			ArgsUsage: "private.toml",
			Action:    create,
		},
		{
			Name:      "deal",
			Usage:     "Share the trapdoor of the authority among replicas",
			ArgsUsage: "authority.toml replica.toml...",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "threshold, t",
					Value: 2,
					Usage: "replicas needed for an update",
				},
				cli.IntFlag{
					Name:  "maxbatch, m",
					Value: 16,
					Usage: "additions and deletions per chunk",
				},
			},
			Action: deal,
		},
		{
			Name:      "sync",
			Usage:     "Copy the new records of the authority to the replicas",
			ArgsUsage: "authority.toml replica.toml...",
			Action:    sync,
		},
		{
			Name:      "status",
			Aliases:   []string{"s"},
			Usage:     "Show the role and state of a node",
			ArgsUsage: "private.toml",
			Action:    status,
		},
	}
	cliApp.Flags = serverFlags
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	cliApp.Action = func(c *cli.Context) error {
		runServer(c.String("config"), c.String("metrics"))
		return nil
	}

	log.ErrFatal(cliApp.Run(os.Args))
}

func runServer(config, metrics string) {
	if metrics != "" {
		go func() {
			log.Error("metrics server stopped:", service.ServeMetrics(metrics))
		}()
	}
	app.RunServer(config)
}

func loadIdentities(files []string) ([]*network.ServerIdentity, error) {
	var res []*network.ServerIdentity
	for _, f := range files {
		cfg, err := app.LoadCothority(f)
		if err != nil {
			return nil, err
		}
		si, err := cfg.GetServerIdentity()
		if err != nil {
			return nil, err
		}
		res = append(res, si)
	}
	return res, nil
}

func create(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please give: private.toml")
	}
	sis, err := loadIdentities(c.Args())
	if err != nil {
		return err
	}
	pub, err := service.NewClient().Create(sis[0])
	if err != nil {
		return err
	}
	buf, err := pub.Key.MarshalBinary()
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(buf))
	return nil
}

func deal(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("please give: authority.toml replica.toml...")
	}
	sis, err := loadIdentities(c.Args())
	if err != nil {
		return err
	}
	err = service.NewClient().Deal(sis[0], sis[1:], c.Int("threshold"), c.Int("maxbatch"))
	if err != nil {
		return err
	}
	log.Infof("Dealt the trapdoor of %s to %d replicas", sis[0].Address, len(sis)-1)
	return nil
}

func sync(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("please give: authority.toml replica.toml...")
	}
	sis, err := loadIdentities(c.Args())
	if err != nil {
		return err
	}
	cl := service.NewClient()
	for _, si := range sis[1:] {
		epoch, err := cl.Sync(sis[0], si)
		if err != nil {
			return err
		}
		log.Infof("%s at epoch %d", si.Address, epoch)
	}
	return nil
}

func status(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("please give: private.toml")
	}
	sis, err := loadIdentities(c.Args())
	if err != nil {
		return err
	}
	st, err := service.NewClient().Status(sis[0])
	if err != nil {
		return err
	}
	role := st.Role
	if role == "" {
		role = "none"
	}
	fmt.Printf("role: %s\nepoch: %d\nkey: %x\nvalue: %x\nmembers: %d\nindex: %d\n",
		role, st.Epoch, st.PublicKey, st.Value, st.Members, st.Index)
	return nil
}
