package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tipjar/pkg/chain"
	"tipjar/pkg/config"
	"tipjar/pkg/controller"
	"tipjar/pkg/metrics"
	"tipjar/pkg/models"
	"tipjar/pkg/notify"
	"tipjar/pkg/server"
	"tipjar/pkg/tui"
	"tipjar/pkg/view"
	"tipjar/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// Version should be set during build
var Version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "tipjar",
		Usage:   "Send tips to a TipJar contract and browse the tips it has received",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default ~/" + config.ConfigFileName + ")",
			},
		},
		Action: runCommand().Action,
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			checkCommand(),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the terminal UI (default)",
		Action: func(c *cli.Context) error {
			path, cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := validate(cfg); err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()
			logger.Info("starting terminal UI", "config", path)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, cfg, logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.close()

			return tui.Start(ctx, a.ctrl, tui.Options{
				View:       viewOptions(cfg),
				DefaultTip: cfg.DefaultTip,
				Switcher:   a.switcher,
				Version:    Version,
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run headless with the HTTP and WebSocket API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port for API server (default server_port from config)",
			},
		},
		Action: func(c *cli.Context) error {
			path, cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := validate(cfg); err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			port := cfg.ServerPort
			if c.IsSet("port") {
				port = c.Int("port")
			}
			logger.Info("starting server", "config", path, "port", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			a, err := setup(ctx, cfg, logger, registry)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.NewServer(a.ctrl, server.Options{
				View:     viewOptions(cfg),
				Gatherer: registry,
				Logger:   logger,
			})
			return srv.Start(ctx, port)
		},
	}
}

// application holds the wired components shared by run and serve.
type application struct {
	ctrl     *controller.Controller
	switcher wallet.AccountSwitcher
	closers  []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(ctx context.Context, cfg config.Config, logger *slog.Logger, registry *prometheus.Registry) (*application, error) {
	a := &application{}
	m := metrics.NewMetrics(registry)

	var provider wallet.Provider
	if len(cfg.DevKeys) > 0 {
		kp, err := wallet.NewKeyProvider(cfg.DevKeys)
		if err != nil {
			return nil, fmt.Errorf("%w: dev_keys: %v", models.ErrConfig, err)
		}
		provider = kp
		a.switcher = kp
		logger.Info("using local dev keys", "count", len(cfg.DevKeys))
	} else {
		rp, err := wallet.DialRPCProvider(ctx, cfg.WalletEndpoint(), cfg.AccountPollInterval(), logger)
		if err != nil {
			logger.Warn("wallet endpoint unavailable", "url", cfg.WalletEndpoint(), "err", err)
		} else {
			provider = rp
			a.closers = append(a.closers, rp.Close)
		}
	}
	gateway := wallet.NewGateway(provider, logger)

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}
	a.closers = append(a.closers, client.Close)

	var chainID *big.Int
	if cfg.ChainID != 0 {
		chainID = big.NewInt(cfg.ChainID)
	}
	binder := chain.NewBinder(client, gateway, chain.BinderOptions{
		Endpoint:     cfg.RPCURL,
		Contract:     cfg.Contract(),
		FetchMode:    cfg.TipFetchMode,
		ChainID:      chainID,
		PollInterval: cfg.ReceiptPollInterval(),
		Metrics:      m,
		Logger:       logger,
	})

	a.ctrl = controller.New(gateway, controller.BinderFunc(func(account common.Address) controller.ContractHandle {
		return binder.Bind(account)
	}), controller.Options{
		AutoConnect: cfg.AutoConnect,
		Metrics:     m,
		Logger:      logger,
	})
	a.closers = append(a.closers, a.ctrl.Close)

	if cfg.NATSURL != "" {
		pub, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("NATS notifications disabled", "err", err)
		} else {
			sub := a.ctrl.Subscribe()
			go pub.Run(ctx, sub)
			a.closers = append(a.closers, func() {
				a.ctrl.Unsubscribe(sub)
				if err := pub.Close(); err != nil {
					logger.Warn("failed to close NATS publisher", "err", err)
				}
			})
		}
	}

	if err := a.ctrl.Start(ctx); err != nil && !errors.Is(err, models.ErrWalletUnavailable) {
		logger.Warn("initial connection failed", "err", err)
	}
	return a, nil
}

func loadConfig(c *cli.Context) (string, config.Config, error) {
	input := c.String("config")
	if input == "" && c.Args().Len() > 0 {
		input = c.Args().First()
	}
	path, err := config.GetConfigPath(input)
	if err != nil {
		return "", config.Config{}, fmt.Errorf("error determining config path: %w", err)
	}
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		return path, config.Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return path, cfg, nil
}

func validate(cfg config.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return cli.Exit(strings.Join(msgs, "\n"), 1)
}

// newLogger builds the JSON logger; fallback receives output when no log_file is set.
func newLogger(cfg config.Config, fallback io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("%w: log_level %q", models.ErrConfig, cfg.LogLevel)
		}
	}

	out, closeFn := fallback, func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closeFn = f, func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}

func viewOptions(cfg config.Config) view.Options {
	opts := view.DefaultOptions()
	opts.Symbol = cfg.Symbol
	opts.Decimals = cfg.TokenDecimals
	return opts
}
