package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/nicolagi/kvs/internal/config"
	"github.com/nicolagi/kvs/internal/engine"
	"github.com/nicolagi/kvs/internal/pool"
	"github.com/nicolagi/kvs/internal/server"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stderr)

	base := flag.String("base", config.DefaultBaseDirectoryPath, "Base directory for configuration and data")
	addr := flag.String("addr", "", "Listen address, e.g. 127.0.0.1:4000")
	engineName := flag.String("engine", "", "Storage backend: kvs, bolt or redis")
	poolSize := flag.Int("pool", runtime.NumCPU(), "Worker pool size")
	flag.Parse()

	// Do NOT install the gops signal handler; it would call os.Exit and
	// skip the clean shutdown below.
	if err := agent.Listen(agent.Options{}); err != nil {
		log.WithField("cause", err).Warning("Could not start gops agent")
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load(*base)
	if err != nil {
		log.WithField("cause", err).Fatalf("Could not load config from %q", *base)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:4000"
	}
	if *engineName != "" {
		cfg.Engine = *engineName
	}
	if cfg.Engine == "" {
		cfg.Engine = "kvs"
	}

	lg := log.WithFields(log.Fields{
		"addr":   cfg.ListenAddr,
		"engine": cfg.Engine,
	})

	e, err := engine.New(cfg)
	if err != nil {
		lg.WithField("cause", err).Fatal("Could not open engine")
	}

	srv := server.New(e, pool.NewSharedQueue(*poolSize))
	h, err := srv.Run(cfg.ListenAddr, lg)
	if err != nil {
		lg.WithField("cause", err).Fatal("Could not start server")
	}
	server.ServeMetrics(cfg.MetricsAddr, lg)
	lg.Info("Listening")

	<-sigc
	lg.Info("Shutting down")
	h.DoShutdown()
	h.Wait()
	if c, ok := e.(io.Closer); ok {
		if err := c.Close(); err != nil {
			lg.WithField("cause", err).Warning("Could not close engine")
		}
	}
}
