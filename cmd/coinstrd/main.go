// Command coinstrd runs the coordination engine's background loops and
// exposes Coordination API operations as subcommands, modeled on
// nhbctl's flag.NewFlagSet-per-subcommand dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"coinstr/config"
	"coinstr/crypto"
	"coinstr/engine"
	"coinstr/loops"
	"coinstr/observability/logging"
	"coinstr/relay"
	"coinstr/storage"
	"coinstr/store"
	"coinstr/wallet"
)

const defaultConfigPath = "./coinstr.toml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}

	switch args[0] {
	case "run":
		return runDaemon(args[1:], stdout, stderr)
	case "save-policy":
		return runSavePolicy(args[1:], stdout, stderr)
	case "policies":
		return runListPolicies(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "coinstr 0.1.0")
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		usage(stderr)
		return 1
	}
}

func usage(w *os.File) {
	fmt.Fprintln(w, "usage: coinstrd <command> [flags]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  run            start the engine and its background loops")
	fmt.Fprintln(w, "  save-policy    create a policy and publish it to configured relays")
	fmt.Fprintln(w, "  policies       list saved policies")
	fmt.Fprintln(w, "  version        print the build version")
}

// buildEngine loads config at path and wires a fresh Engine against it: the
// shared setup every subcommand needs, whether it's a one-shot read/write or
// the long-running daemon.
func buildEngine(configPath string) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	identity, err := cfg.PrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("load identity key: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "coinstr.db")
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	st := store.New(db)

	transport := relay.NewClient()
	ctx := context.Background()
	for _, url := range cfg.Relays {
		if err := transport.AddRelay(ctx, url); err != nil {
			return nil, nil, fmt.Errorf("connect relay %s: %w", url, err)
		}
		if err := st.AddRelay(url); err != nil {
			return nil, nil, fmt.Errorf("record relay %s: %w", url, err)
		}
	}

	wallets := wallet.NewStubFactory(0)
	e := engine.New(st, transport, wallets, identity, cfg.Network, cfg.NotifyBuffer)

	if cfg.ElectrumEndpoint != "" {
		if err := e.SetElectrumEndpoint(cfg.ElectrumEndpoint); err != nil {
			return nil, nil, fmt.Errorf("connect electrum: %w", err)
		}
	}
	return e, cfg, nil
}

func runDaemon(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the coinstr config file")
	env := fs.String("env", "", "deployment environment label for structured logs")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := logging.Setup("coinstrd", *env)

	e, cfg, err := buildEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	runner := loops.Start(e, log)
	if runner == nil {
		fmt.Fprintln(stderr, "error: engine already syncing")
		return 1
	}
	defer runner.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("coinstrd config loaded",
		"data_dir", cfg.DataDir,
		"network", string(cfg.Network),
		logging.MaskField("identity_key", cfg.IdentityKey),
	)
	log.Info("coinstrd started", "identity", e.Identity().String())
	<-ctx.Done()
	log.Info("coinstrd shutting down")
	return 0
}

func runSavePolicy(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("save-policy", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the coinstr config file")
	name := fs.String("name", "", "policy name")
	description := fs.String("description", "", "policy description")
	descriptor := fs.String("descriptor", "", "output descriptor")
	cosignersFlag := fs.String("cosigners", "", "comma-separated hex cosigner public keys")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *name == "" || *descriptor == "" || *cosignersFlag == "" {
		fmt.Fprintln(stderr, "error: -name, -descriptor, and -cosigners are required")
		return 1
	}

	e, cfg, err := buildEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	cosigners, err := parseCosigners(*cosignersFlag)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	id, err := e.SavePolicy(*name, *description, *descriptor, cfg.Network, cosigners)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, id.String())
	return 0
}

func runListPolicies(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("policies", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the coinstr config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	e, _, err := buildEngine(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	policies, err := e.GetPolicies()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	for _, p := range policies {
		fmt.Fprintf(stdout, "%s\t%s\t%d-of-%d\n", p.ID, p.Name, p.Threshold, len(p.Cosigners))
	}
	return 0
}

func parseCosigners(csv string) ([]crypto.PublicKey, error) {
	var out []crypto.PublicKey
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			hexKey := csv[start:i]
			if hexKey != "" {
				pub, err := crypto.PublicKeyFromHex(hexKey)
				if err != nil {
					return nil, fmt.Errorf("invalid cosigner key %q: %w", hexKey, err)
				}
				out = append(out, pub)
			}
			start = i + 1
		}
	}
	return out, nil
}
