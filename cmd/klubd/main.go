package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"klubstake/cmd/internal/passphrase"
	"klubstake/config"
	"klubstake/core"
	"klubstake/core/events"
	"klubstake/crypto"
	"klubstake/journal"
	"klubstake/observability/logging"
	klubotel "klubstake/observability/otel"
	"klubstake/rpc"
	"klubstake/storage"
)

const (
	serviceName     = "klubd"
	defaultConfig   = "./config.toml"
	defaultPassEnv  = "KLUB_KEY_PASS"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "export-clients":
		err = runExport(os.Args[2:])
	case "audit":
		err = runAudit(os.Args[2:])
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  start           serve the JSON-RPC API
  export-clients  write the client registry to a Parquet file
  audit           check the deposit ledger invariants
  keygen          create a caller identity in an encrypted keystore
  token           issue a bearer token for a caller identity
`, serviceName)
}

type node struct {
	db      *storage.LevelDB
	app     *core.App
	hub     *events.Hub
	journal *journal.Journal
}

func openNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	contract, err := cfg.ContractAddress()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n := &node{db: db, hub: events.NewHub()}
	opts := core.Options{
		Contract:      contract,
		AcceptedDenom: cfg.Contract.AcceptedDenom,
		Policy:        policy,
		Hub:           n.hub,
		Logger:        logger,
	}
	if dsn := strings.TrimSpace(cfg.Journal.DSN); dsn != "" {
		j, err := journal.Open(dsn)
		if err != nil {
			db.Close()
			return nil, err
		}
		n.journal = j
		opts.Journal = j
	}
	app, err := core.NewApp(db, opts)
	if err != nil {
		n.Close()
		return nil, err
	}
	n.app = app
	return n, nil
}

func (n *node) journalReader() rpc.JournalReader {
	if n.journal == nil {
		return nil
	}
	return n.journal
}

func (n *node) Close() {
	if n.journal != nil {
		_ = n.journal.Close()
	}
	n.db.Close()
}

// ensureSetup instantiates the ledger from the [Setup] section when it has
// not been instantiated yet.
func ensureSetup(ctx context.Context, app *core.App, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.SetupRequested() {
		return nil
	}
	if _, err := app.Query(ctx, core.QueryMsg{ContractInfo: &struct{}{}}); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrNotInstantiated) {
		return err
	}
	admin, msg, err := cfg.InstantiateMsg()
	if err != nil {
		return err
	}
	resp, err := app.Instantiate(ctx, core.MessageInfo{Sender: admin}, msg)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	logger.Info("ledger instantiated",
		slog.Uint64("height", resp.Height),
		slog.String("root", resp.Root),
		logging.MaskField("admin", admin.String()))
	return nil
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", defaultConfig, "Path to the configuration file (.toml, .yaml or .yml)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*configPath)
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	listen := fs.String("listen", "", "Override the configured listen address")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.ListenAddress = *listen
	}

	logger := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		File:  cfg.LogFile,
		Level: cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := klubotel.Init(ctx, cfg.OTel(serviceName))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	n, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := ensureSetup(ctx, n.app, cfg, logger); err != nil {
		return err
	}

	server, err := rpc.NewServer(n.app, n.hub, n.journalReader(), cfg.ServerConfig(), logger)
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddress, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	logger.Info("klubd running",
		slog.String("listen", listener.Addr().String()),
		slog.Uint64("height", n.app.Height()),
		slog.String("root", n.app.Root().Hex()))

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("klubd stopped")
	return <-serveErr
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export-clients", flag.ExitOnError)
	out := fs.String("out", "clients.parquet", "Output Parquet file")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{Level: cfg.LogLevel, Output: os.Stderr})
	n, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()
	count, err := journal.ExportClients(context.Background(), n.app, *out)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d clients to %s\n", count, *out)
	return nil
}

func runAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{Level: cfg.LogLevel, Output: os.Stderr})
	n, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()
	if err := n.app.Audit(); err != nil {
		return err
	}
	fmt.Printf("ledger consistent at height %d (root %s)\n", n.app.Height(), n.app.Root().Hex())
	return nil
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "caller.keystore", "Output keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("keystore %s already exists", *out)
	}
	pass, err := passphrase.NewSource(*passEnv, "caller keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address().String())
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Caller address (klub1...)")
	keystorePath := fs.String("keystore", "", "Keystore whose identity becomes the subject")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	caller, err := resolveSubject(*subject, *keystorePath, passphrase.NewSource(*passEnv, "caller keystore"))
	if err != nil {
		return err
	}
	token, err := rpc.IssueToken(cfg.ServerConfig().JWT, caller, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func resolveSubject(subject, keystorePath string, pass *passphrase.Source) (crypto.Address, error) {
	switch {
	case strings.TrimSpace(subject) != "" && strings.TrimSpace(keystorePath) != "":
		return crypto.Address{}, errors.New("provide either -subject or -keystore, not both")
	case strings.TrimSpace(subject) != "":
		return crypto.ParseAddress(crypto.KlubPrefix, subject)
	case strings.TrimSpace(keystorePath) != "":
		secret, err := pass.Get()
		if err != nil {
			return crypto.Address{}, err
		}
		key, err := crypto.LoadFromKeystore(keystorePath, secret)
		if err != nil {
			return crypto.Address{}, err
		}
		return key.PubKey().Address(), nil
	default:
		return crypto.Address{}, errors.New("-subject or -keystore required")
	}
}
