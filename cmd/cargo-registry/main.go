/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command cargo-registry runs a standalone, git-backed cargo package
// registry: a dumb-HTTP git index alongside a minimal publish/download API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ConfigButler/cargo-registry/internal/archive"
	"github.com/ConfigButler/cargo-registry/internal/gitindex"
	"github.com/ConfigButler/cargo-registry/internal/metrics"
	"github.com/ConfigButler/cargo-registry/internal/registryhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, causeChain(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        = flag.StringP("addr", "a", "127.0.0.1:0", "socket address to bind the registry API to")
		metricsAddr = flag.String("metrics-addr", "127.0.0.1:9090", "socket address to bind the metrics/health server to")
		verbosity   = flag.CountP("verbose", "v", "increase log verbosity (repeatable)")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		return errors.New("usage: cargo-registry [flags] REGISTRY_ROOT")
	}
	root := flag.Arg(0)

	log, err := newLogger(*verbosity)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	setupLog := log.WithName("startup")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, shutdownMetrics, err := metrics.Init(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			setupLog.Error(err, "failed to shut down metrics exporter")
		}
	}()

	listener, boundAddr, err := bindWithFallback(*addr, root, setupLog)
	if err != nil {
		return err
	}

	idx, err := gitindex.Open(root, boundAddr, log.WithName("index"))
	if err != nil {
		return fmt.Errorf("failed to create/instantiate crate index at %s: %w", root, err)
	}
	cell := registryhttp.NewIndexCell(idx)
	store := archive.NewStore(root)

	handler := registryhttp.New(root, cell, store, registryhttp.Metrics{
		PublishRequests:  metrics.PublishRequestsTotal,
		DownloadRequests: metrics.DownloadRequestsTotal,
		PublishDuration:  metrics.PublishDurationSeconds,
	}, log.WithName("http"))

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              *metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		setupLog.Info("starting metrics server", "addr", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "metrics server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		setupLog.Info("starting registry server", "addr", boundAddr)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		setupLog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = metricsServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("registry server failed: %w", err)
		}
		return nil
	}
}

// bindWithFallback implements the startup reconciler's bind/retry dance: if
// the requested port is 0, it tries the port recorded in a previous run's
// config.json first; if binding that fails, it falls back once to letting
// the kernel assign a fresh port.
func bindWithFallback(requestedAddr, root string, log logr.Logger) (net.Listener, string, error) {
	host, port, err := net.SplitHostPort(requestedAddr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse address %s: %w", requestedAddr, err)
	}

	preferred := requestedAddr
	if port == "0" {
		if prevPort, err := gitindex.TryReadPort(root); err == nil {
			preferred = fmt.Sprintf("%s:%d", host, prevPort)
			log.Info("reusing previously bound port", "addr", preferred)
		}
	}

	listener, err := net.Listen("tcp", preferred)
	if err != nil {
		if preferred == requestedAddr || port != "0" {
			return nil, "", fmt.Errorf("failed to bind to %s: %w", preferred, err)
		}
		log.Info("preferred port unavailable, falling back to a kernel-assigned port", "preferred", preferred, "error", err.Error())
		listener, err = net.Listen("tcp", requestedAddr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to bind to %s: %w", requestedAddr, err)
		}
	}

	return listener, listener.Addr().String(), nil
}

// newLogger builds a logr.Logger backed by zap. Verbosity maps onto the
// zap core's level threshold following the same V-level convention zapr
// uses to bridge logr.V(n) calls onto zapcore.Level(-n): 0 maps to warn, 1
// to info, 2 to debug, and 3+ opens a trace tier below debug
// (zapcore.Level(-2)) that only logr.V(2) call sites reach.
func newLogger(verbosity int) (logr.Logger, error) {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 3:
		level = zapcore.Level(-2)
	case verbosity == 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"

	zlog, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}

	return zapr.NewLogger(zlog), nil
}

// causeChain renders err's full causality chain, outermost first, for
// printing to stderr on startup failure.
func causeChain(err error) string {
	msg := err.Error()
	for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
		msg += "\n  caused by: " + cur.Error()
	}
	return msg
}
