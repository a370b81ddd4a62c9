/*-
 * Copyright 2015 Square Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	"github.com/ghostunnel/certinfo/auth"
	"github.com/ghostunnel/certinfo/certloader"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

const statusShutdownTimeout = 5 * time.Second

type watchOptions struct {
	interval     time.Duration
	statusAddr   string
	graphiteAddr *net.TCPAddr
	prefix       string
	notify       bool
	acl          aclOptions
}

// monitor keeps the last load result of a set of certificate files.
type monitor struct {
	loader  *certloader.Loader
	paths   []string
	status  *statusHandler
	metrics *loadMetrics
	// Optional, certificates it rejects are reported as not ok
	acl *auth.ACL
}

func newMonitor(loader *certloader.Loader, paths []string, m *loadMetrics) *monitor {
	return &monitor{
		loader:  loader,
		paths:   paths,
		status:  newStatusHandler(paths),
		metrics: m,
	}
}

// reload reloads the policy (if any), loads every path once and publishes
// the results.
func (m *monitor) reload(ctx context.Context) {
	m.status.Reloading()

	if m.acl != nil && m.acl.AllowOPAQuery != nil {
		if err := m.acl.AllowOPAQuery.Reload(); err != nil {
			logger.Printf("error reloading policy, keeping previous one: %s", err)
		}
	}

	failed, expired, rejected := 0, 0, 0
	for _, path := range m.paths {
		start := time.Now()
		info, err := m.loader.Load(path)
		m.metrics.observe(path, info, err, start)

		var verifyErr error
		if err == nil && m.acl != nil {
			verifyErr = m.acl.Verify(ctx, path, info)
		}
		m.status.Update(path, info, err, verifyErr)

		switch {
		case err != nil:
			failed++
		case info.IsExpired:
			expired++
		case verifyErr != nil:
			rejected++
		}
	}
	m.metrics.flush()
	m.status.Watching()

	systemdNotifyStatus(fmt.Sprintf("watching %d certificate(s), %d failed, %d expired, %d rejected", len(m.paths), failed, expired, rejected))
}

// loop reloads on file changes and SIGUSR1 until ctx is done. Each tick
// loads the certificates again without announcing a reload, so expiry is
// re-evaluated against the current time even if no file changed.
func (m *monitor) loop(ctx context.Context, changes <-chan bool, signals <-chan os.Signal, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			m.reload(ctx)
			continue
		case <-changes:
		case sig := <-signals:
			logger.Printf("received %s, reloading certificates", sig)
		}

		systemdNotifyReloading()
		m.reload(ctx)
		logger.Printf("reloading complete")
		systemdNotifyReady()
	}
}

// watch loads the given certificates, then keeps reloading them as they
// change and exports their state until ctx is cancelled.
func watch(ctx context.Context, loader *certloader.Loader, paths []string, opts watchOptions) error {
	promRegistry := prometheus.NewRegistry()
	m := newMonitor(loader, paths, newLoadMetrics(metrics.DefaultRegistry, promRegistry, opts.prefix))

	if opts.acl.enabled() {
		acl, err := opts.acl.acl()
		if err != nil {
			return err
		}
		m.acl = &acl
	}

	if opts.graphiteAddr != nil {
		logger.Printf("metrics enabled; reporting metrics via TCP to %s", opts.graphiteAddr)
		go graphite.Graphite(metrics.DefaultRegistry, 1*time.Second, opts.prefix, opts.graphiteAddr)
	}

	var statusListener net.Listener
	if opts.statusAddr != "" {
		var err error
		statusListener, err = net.Listen("tcp", opts.statusAddr)
		if err != nil {
			return errors.Wrapf(err, "unable to listen on status address %s", opts.statusAddr)
		}
		logger.Printf("serving status on %s", statusListener.Addr())
	}

	m.reload(ctx)
	logger.Printf("initial load complete, watching %d certificate(s)", len(paths))
	systemdNotifyReady()
	defer systemdNotifyStopping()

	signals, stopSignals := reloadSignals()
	defer stopSignals()

	// A policy change triggers a reload like a certificate change
	watched := paths
	if opts.acl.policyPath != "" {
		watched = append(slices.Clone(paths), opts.acl.policyPath)
	}

	changes := make(chan bool, 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		watchTimed(ctx, watched, opts.interval, changes)
		return nil
	})
	if opts.notify {
		g.Go(func() error {
			return watchAuto(ctx, watched, changes)
		})
	}
	expiryTicker := time.NewTicker(opts.interval)
	defer expiryTicker.Stop()
	g.Go(func() error {
		return m.loop(ctx, changes, signals, expiryTicker.C)
	})
	g.Go(func() error {
		if err := systemdHandleWatchdog(ctx, m.status.Healthy); err != nil {
			logger.Printf("not running systemd watchdog: %s", err)
		}
		return nil
	})
	if statusListener != nil {
		mux := http.NewServeMux()
		mux.Handle("/_status", m.status)
		mux.Handle("/_metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		g.Go(func() error {
			return serveStatus(ctx, statusListener, mux)
		})
	}

	err := g.Wait()
	logger.Printf("shutting down")
	return err
}

// serveStatus serves handler on listener until ctx is done, then shuts
// the server down gracefully.
func serveStatus(ctx context.Context, listener net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err := server.Serve(listener)
	if err == http.ErrServerClosed {
		<-done
		return nil
	}
	return errors.Wrap(err, "status server failed")
}
