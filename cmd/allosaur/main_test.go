package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/onet/v3/log"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

type testApp struct {
	t      *testing.T
	config string
}

func (ta testApp) run(args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"allosaur", "--config", ta.config}, args...))
	return strings.TrimSpace(out.String()), err
}

func (ta testApp) mustRun(args ...string) string {
	out, err := ta.run(args...)
	require.NoError(ta.t, err, "allosaur %v", args)
	return out
}

func TestCli(t *testing.T) {
	dir, err := ioutil.TempDir("", "allosaur-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	ta := testApp{t: t, config: filepath.Join(dir, "allosaur.toml")}

	_, err = ta.run("status")
	require.Error(t, err)

	key := ta.mustRun("init")
	require.Len(t, key, 256)
	_, err = os.Stat(filepath.Join(dir, "allosaur.db"))
	require.NoError(t, err)
	cfg, err := loadConfig(ta.config)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.MaxBatch)
	_, err = ta.run("init")
	require.Error(t, err)

	require.Equal(t, "epoch 1: 3 members", ta.mustRun("add", "alice", "bob", "carol"))
	_, err = ta.run("add", "bob")
	require.Error(t, err)
	w := ta.mustRun("witness", "alice")
	require.Len(t, w, 2*104)

	require.Equal(t, "epoch 2: 2 members", ta.mustRun("delete", "bob"))
	_, err = ta.run("witness", "bob")
	require.Error(t, err)
	require.NotEmpty(t, ta.mustRun("update", "1", "2"))
	_, err = ta.run("update", "2", "1")
	require.Error(t, err)

	// The witness of epoch 1 is brought up to date before proving.
	proof := ta.mustRun("prove", "--nonce", "fresh", w)
	require.Len(t, proof, 2*320)
	require.Equal(t, "valid proof for epoch 2", ta.mustRun("verify", "--nonce", "fresh", proof))
	_, err = ta.run("verify", "--nonce", "stale", proof)
	require.Error(t, err)

	shares := strings.Split(ta.mustRun("deal", "3"), "\n")
	require.Len(t, shares, 3)

	status := ta.mustRun("status")
	require.Contains(t, status, "epoch: 2")
	require.Contains(t, status, "members: 2")
	require.Contains(t, status, "key: "+key)
}

func TestConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "allosaur-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "allosaur.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte("DB = \"/tmp/acc.db\"\nMaxBatch = 4\nThreshold = 3\n"), 0600))
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/acc.db", cfg.dbPath())
	require.Equal(t, 4, cfg.MaxBatch)
	require.Equal(t, 3, cfg.Threshold)

	require.NoError(t, ioutil.WriteFile(path, []byte("MaxBatch = 0\n"), 0600))
	_, err = loadConfig(path)
	require.Error(t, err)

	cfg = defaultConfig(filepath.Join(dir, "other.toml"))
	require.Equal(t, filepath.Join(dir, "allosaur.db"), cfg.dbPath())
	require.NoError(t, cfg.save())
	loaded, err := loadConfig(cfg.path)
	require.NoError(t, err)
	require.Equal(t, cfg.Threshold, loaded.Threshold)
}
