package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/presbrey/authircd/irc/config"
	"github.com/presbrey/authircd/irc/identity/sqlstore"
	"github.com/presbrey/authircd/irc/logging"
	"github.com/presbrey/authircd/irc/server"
	flag "github.com/spf13/pflag"
)

// options are the command-line flags
type options struct {
	config    string
	listen    string
	logLevel  string
	logFormat string
	watch     bool
}

func main() {
	if _, err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "ircd:", err)
	}

	var opts options
	flag.StringVarP(&opts.config, "config", "c", os.Getenv("IRCD_CONFIG"), "Config file path or URL")
	flag.StringVarP(&opts.listen, "listen", "l", "", "IRC bind address, overrides the config (host:port)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level: "+logging.LevelNames())
	flag.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	flag.BoolVarP(&opts.watch, "watch", "w", false, "Rehash when the config file changes")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "ircd:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	if opts.listen != "" {
		if err := applyListen(cfg, opts.listen); err != nil {
			return err
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}

	logger, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	logger.Info("starting ircd",
		"name", cfg.Server.Name,
		"listen", cfg.GetListenAddress(),
		"config", cfg.Source,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connectCtx, connectDone := context.WithTimeout(ctx, cfg.Identity.ConnectTimeout.Std())
	store, err := sqlstore.OpenContext(connectCtx, cfg.Identity.DSN, sqlstore.DefaultBackoff, sqlstore.WithLogger(logger))
	connectDone()
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Identity.SeedFile != "" {
		res, err := store.LoadSeedFile(ctx, cfg.Identity.SeedFile)
		if err != nil {
			return err
		}
		logger.Info("seed file applied", "path", cfg.Identity.SeedFile, "created", res.Created, "updated", res.Updated)
	}

	srv, err := server.NewServer(cfg, store, server.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	var api *server.StatusAPI
	if cfg.HTTP.Enabled {
		api = server.NewStatusAPI(srv)
		go func() {
			if err := api.Start(cfg.GetHTTPListenAddress()); err != nil {
				logger.Error("status API failed", "err", err)
			}
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if opts.watch && config.IsLocalFile(cfg.Source) {
		err := config.Watch(ctx, cfg.Source, config.DefaultWatchDebounce, func() {
			select {
			case hup <- syscall.SIGHUP:
			default:
			}
		})
		if err != nil {
			return err
		}
		logger.Info("watching config file", "path", cfg.Source)
	}

	logger.Info("server is running")
	for running := true; running; {
		select {
		case <-hup:
			if err := srv.Rehash(""); err != nil {
				logger.Error("rehash failed", "err", err)
			}
		case <-ctx.Done():
			running = false
		}
	}

	logger.Info("shutdown signal received, stopping server")
	if api != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status API shutdown", "err", err)
		}
		done()
	}
	if err := srv.Stop(); err != nil {
		logger.Error("error stopping server", "err", err)
	}
	logger.Info("goodbye")
	return nil
}

// applyListen overrides the configured IRC bind address
func applyListen(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid --listen port %q: %w", portStr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	cfg.Server.Host = host
	cfg.Server.Port = port
	return cfg.Validate()
}
