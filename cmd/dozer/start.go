package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/dozer/internal/auth"
	"github.com/loykin/dozer/internal/config"
	"github.com/loykin/dozer/internal/history"
	"github.com/loykin/dozer/internal/history/factory"
	"github.com/loykin/dozer/internal/manager"
	"github.com/loykin/dozer/internal/metrics"
	"github.com/loykin/dozer/internal/monitor"
	"github.com/loykin/dozer/internal/probe"
	"github.com/loykin/dozer/internal/process"
	"github.com/loykin/dozer/internal/proxy"
	"github.com/loykin/dozer/internal/rcon"
	"github.com/loykin/dozer/internal/server"
	"github.com/loykin/dozer/internal/serverfiles"
	"github.com/loykin/dozer/internal/stdin"
	"github.com/loykin/dozer/internal/tls"
)

// shutdownGrace is added to server.stop_timeout when stopping on exit.
const shutdownGrace = 10 * time.Second

func runStart(parent context.Context, configPath string, flags StartFlags) error {
	cfg, err := config.Load(config.LoadOptions{Path: configPath, PublicAddress: flags.PublicAddress})
	if err != nil {
		return err
	}
	log := cfg.Log.NewSlogger()
	slog.SetDefault(log)
	if w := cfg.VersionWarning(); w != "" {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	opts := []manager.Option{manager.WithLogger(log)}
	if cfg.History.Enabled {
		sinks, err := factory.NewSinks(cfg.History.Sinks)
		if err != nil {
			return fmt.Errorf("history sinks: %w", err)
		}
		disp := history.NewDispatcher(log, sinks...)
		defer func() { _ = disp.Close() }()
		opts = append(opts, manager.WithHistory(disp))
	}

	var rc *rcon.Client
	if cfg.RCON.Enabled {
		rc = rcon.NewClient(cfg.RCONAddress(), cfg.RCON.Password, cfg.RCON.SendProxyV2)
		opts = append(opts, manager.WithRCON(rc))
	}

	stdout, stderr, closeOutput, err := serverOutput(cfg)
	if err != nil {
		return err
	}
	defer closeOutput()

	launch := func() (manager.Child, error) {
		password, err := serverfiles.Prepare(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("prepare server.properties: %w", err)
		}
		if rc != nil {
			rc.SetPassword(password)
		}
		spec, err := cfg.ProcessSpec(stdout, stderr)
		if err != nil {
			return nil, err
		}
		p, err := process.Launch(spec)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	ms := manager.NewManagedServer(cfg, process.NewController(log), launch, opts...)

	monOpts := []monitor.Option{monitor.WithLogger(log), monitor.WithSampler(&metrics.ProcessSampler{})}
	if rc != nil {
		monOpts = append(monOpts, monitor.WithPlayerCounter(rc))
	}
	prober := probe.NewClient(cfg.Server.Address, cfg.Public.Protocol, cfg.Server.SendProxyV2, log)
	mon := monitor.New(ms, prober, monOpts...)

	var authSvc *auth.Service
	if cfg.API.Enabled && cfg.API.Auth.Enabled {
		if authSvc, err = auth.NewService(cfg.API.Auth); err != nil {
			return fmt.Errorf("admin API auth: %w", err)
		}
	}
	apiTLS, err := tls.Setup(cfg.API.TLS)
	if err != nil {
		return fmt.Errorf("admin API TLS: %w", err)
	}

	var proxyOpts []proxy.Option
	files := serverfiles.New(cfg.ServerDirectory(), log)
	checkAccess := cfg.Server.WakeWhitelist || cfg.Server.BlockBannedIPs || cfg.Server.DropBannedIPs
	if checkAccess {
		if err := files.Reload(); err != nil {
			log.Warn("failed to load server access lists", "error", err)
		}
		proxyOpts = append(proxyOpts, proxy.WithAccessList(files))
	}

	if cfg.Server.WakeOnStart {
		if _, err := ms.Wake(ctx); err != nil {
			return fmt.Errorf("start server: %w\nhint: check server.command and server.directory", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return proxy.New(cfg, ms, log, proxyOpts...).ListenAndServe(gctx) })
	if checkAccess {
		g.Go(func() error {
			if err := files.Watch(gctx); err != nil {
				log.Warn("not watching server access lists", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error { return stdin.New(os.Stdin, ms, log).Run(gctx) })
	if cfg.API.Enabled {
		srv := server.NewServer(cfg.API.Listen, cfg.API.BasePath, ms, cfg.Metrics.Enabled, authSvc)
		srv.TLSConfig = apiTLS
		log.Info("admin API listening", "address", cfg.API.Listen, "base_path", cfg.API.BasePath, "tls", apiTLS != nil)
		g.Go(func() error { return server.Serve(gctx, srv) })
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		log.Info("metrics listening", "address", cfg.Metrics.Listen)
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Listen) })
	}

	runErr := g.Wait()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout+shutdownGrace)
	defer cancel()
	if err := ms.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", "error", err)
	}
	return runErr
}

// serverOutput returns the writers receiving the server's console output:
// dozer's own stdout/stderr plus rotated files when log.dir or explicit
// paths are configured.
func serverOutput(cfg *config.Config) (io.Writer, io.Writer, func(), error) {
	outFile, errFile, err := cfg.Log.ProcessWriters("server")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("server log files: %w", err)
	}
	var stdout, stderr io.Writer = os.Stdout, os.Stderr
	if outFile != nil {
		stdout = io.MultiWriter(os.Stdout, outFile)
	}
	if errFile != nil {
		stderr = io.MultiWriter(os.Stderr, errFile)
	}
	closeAll := func() {
		var errs []error
		if outFile != nil {
			errs = append(errs, outFile.Close())
		}
		if errFile != nil {
			errs = append(errs, errFile.Close())
		}
		if err := errors.Join(errs...); err != nil {
			slog.Warn("failed to close server log files", "error", err)
		}
	}
	return stdout, stderr, closeAll, nil
}
