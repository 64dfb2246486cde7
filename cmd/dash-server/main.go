package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ageofrisk/internal/config"
	"ageofrisk/internal/metrics"
	"ageofrisk/internal/server"
	"ageofrisk/internal/session"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-data-dir <dir>] [-addr <host:port>]\n", os.Args[0])
		flag.PrintDefaults()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	dataDir := flag.String("data-dir", cfg.DataDir, "Directory holding the three source CSV files")
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	flag.Parse()
	cfg.DataDir = *dataDir
	cfg.Addr = *addr

	logger := cfg.NewLogger(true)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sess, err := session.Open(ctx, cfg, logger, m)
	if err != nil {
		log.Fatalf("open session: %v", err)
	}
	logger.Info("session ready", "session_id", sess.ID, "version", sess.Version)

	srv := server.NewHTTPServer(cfg.Addr, server.New(sess, logger, m).Router())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
