// Package stack ties the pieces together: cleanup of earlier runs, prestart
// steps, spawning the service set, log tailing, and coordinated shutdown.
package stack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nullspacelabs/stackup/internal/config"
	"github.com/nullspacelabs/stackup/internal/env"
	"github.com/nullspacelabs/stackup/internal/history"
	"github.com/nullspacelabs/stackup/internal/metrics"
	"github.com/nullspacelabs/stackup/internal/registry"
	"github.com/nullspacelabs/stackup/internal/server"
	"github.com/nullspacelabs/stackup/internal/supervise"
	"github.com/nullspacelabs/stackup/internal/tail"
	"github.com/nullspacelabs/stackup/internal/terminate"
)

// cleanupTimeout bounds the graceful window when stopping leftovers from a
// previous run.
const cleanupTimeout = 2 * time.Second

// Options tunes one invocation of Up. Zero values mean defaults.
type Options struct {
	Console       io.Writer     // merged log stream destination (default os.Stdout)
	Listen        string        // status API address, empty disables
	MetricsListen string        // metrics-only address, empty disables
	Grace         time.Duration // overrides the stack file's grace when > 0
	ExtraEnv      []string      // "K=V" overrides from the command line
	TailInterval  time.Duration // tailer poll interval override, for tests
}

// Up brings the whole stack up and blocks until ctx is cancelled (signal or
// status API), then drives the coordinated shutdown. Configuration and spawn
// problems abort with an error before or during startup; cleanup problems
// never do.
func Up(ctx context.Context, st *config.Stack, opts Options) error {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	e, err := buildEnv(st, opts.ExtraEnv)
	if err != nil {
		return err
	}
	if err := checkRequiredEnv(st, e); err != nil {
		return err
	}

	reg := registry.New(st.PIDDir)
	term := terminate.New()
	cleanup(st, reg, term)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("metrics registration failed", "error", err)
	}

	sup := supervise.New(reg, st.Sinks)
	store := openHistory(st)
	if store != nil {
		defer func() { _ = store.Close() }()
		sup.OnStart = func(name string, pid int) {
			if err := store.RecordStart(context.Background(), name, pid); err != nil {
				slog.Debug("history record failed", "name", name, "error", err)
			}
		}
		sup.OnExit = func(name string, pid int, exitErr error) {
			if err := store.RecordStop(context.Background(), name, pid, exitErr); err != nil {
				slog.Debug("history record failed", "name", name, "error", err)
			}
		}
	}

	for _, step := range st.Prestart {
		if err := runStep(ctx, step, e, console); err != nil {
			return err
		}
	}

	// Inner context so the status API can trigger the same shutdown path as
	// a termination signal.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	grace := opts.Grace
	if grace <= 0 {
		grace = st.Grace
	}

	started := false
	for _, svc := range st.Services {
		_, err := sup.Start(supervise.Spec{
			Name:    svc.Name,
			Command: svc.Command,
			WorkDir: svc.WorkDir,
			Env:     e.Merge(svc.Env),
		})
		if err != nil {
			if started {
				// Siblings that made it up still get an orderly stop.
				supervise.Coordinator{Grace: grace}.Shutdown(sup.Procs())
				sup.ClearMarkers()
				waitReaped(sup.Procs())
			}
			return err
		}
		started = true
	}

	merged := tail.NewConsole(console)
	var tailers sync.WaitGroup
	for _, svc := range st.Services {
		t := &tail.Tailer{
			Path:     sup.SinkPath(svc.Name),
			Prefix:   svc.Name,
			Out:      merged,
			Interval: opts.TailInterval,
		}
		tailers.Add(1)
		go func() {
			defer tailers.Done()
			if err := t.Run(runCtx); err != nil {
				slog.Warn("tailer stopped", "path", t.Path, "error", err)
			}
		}()
	}

	var servers []*http.Server
	if opts.Listen != "" {
		servers = append(servers, server.NewServer(opts.Listen, sup.Statuses, cancel))
		slog.Info("status api listening", "addr", opts.Listen)
	}
	if opts.MetricsListen != "" {
		servers = append(servers, metricsServer(opts.MetricsListen))
		slog.Info("metrics listening", "addr", opts.MetricsListen)
	}

	slog.Info("stack is up, streaming logs", "services", len(st.Services))
	<-runCtx.Done()

	slog.Info("shutting down stack", "grace", grace)
	supervise.Coordinator{Grace: grace}.Shutdown(sup.Procs())
	sup.ClearMarkers()
	waitReaped(sup.Procs())
	joinTailers(&tailers, opts.TailInterval)
	for _, srv := range servers {
		shutCtx, done := context.WithTimeout(context.Background(), time.Second)
		_ = srv.Shutdown(shutCtx)
		done()
	}
	return nil
}

// Down stops everything a previous run may have left behind, by registry and
// by pattern, without starting anything.
func Down(st *config.Stack) {
	reg := registry.New(st.PIDDir)
	term := terminate.New()
	cleanup(st, reg, term)
}

// Statuses reports each configured service's recorded pid and liveness.
func Statuses(st *config.Stack) []supervise.Status {
	reg := registry.New(st.PIDDir)
	term := terminate.New()
	out := make([]supervise.Status, 0, len(st.Services))
	for _, svc := range st.Services {
		pid, ok := reg.Read(svc.Name)
		out = append(out, supervise.Status{
			Name:    svc.Name,
			PID:     pid,
			Running: ok && term.Alive(pid),
		})
	}
	return out
}

// cleanup terminates anything left from a previous run: recorded pids first,
// then a pattern sweep for orphans the registry never knew about.
func cleanup(st *config.Stack, reg registry.Registry, term terminate.Terminator) {
	for _, svc := range st.Services {
		if term.ByRegistry(reg, svc.Name, cleanupTimeout) {
			metrics.IncSwept()
		}
	}
	for _, pattern := range st.Patterns {
		n := term.ByPattern(pattern, cleanupTimeout)
		for i := 0; i < n; i++ {
			metrics.IncSwept()
		}
	}
}

// openHistory opens the event store when enabled. History is an
// observability extra: any failure downgrades to a warning, never aborts the
// run.
func openHistory(st *config.Stack) *history.Store {
	if st.HistoryPath == "" {
		return nil
	}
	store, err := history.Open(st.HistoryPath)
	if err != nil {
		slog.Warn("history store unavailable", "path", st.HistoryPath, "error", err)
		return nil
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		slog.Warn("history schema init failed", "path", st.HistoryPath, "error", err)
		_ = store.Close()
		return nil
	}
	return store
}

// buildEnv composes the shared environment: OS base, env files in order, then
// stack-level and command-line overrides. A missing env file is a
// configuration error, not a cleanup problem.
func buildEnv(st *config.Stack, extra []string) (*env.Env, error) {
	e := env.New()
	e.FromOS()
	for _, path := range st.EnvFiles {
		if err := e.LoadFile(path); err != nil {
			return nil, fmt.Errorf("required env file: %w", err)
		}
	}
	e.SetPairs(st.Env)
	e.SetPairs(extra)
	return e, nil
}

// checkRequiredEnv fails fast, before anything is spawned, when a service
// declares a key the merged environment does not provide.
func checkRequiredEnv(st *config.Stack, e *env.Env) error {
	missing := make(map[string][]string)
	for _, svc := range st.Services {
		for _, key := range svc.RequireEnv {
			if _, ok := e.Get(key); !ok {
				missing[key] = append(missing[key], svc.Name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s (required by %s)", k, strings.Join(missing[k], ", ")))
	}
	return fmt.Errorf("missing required environment: %s", strings.Join(parts, "; "))
}

// runStep executes one blocking prestart command, streaming its output to the
// console. Any failure aborts the run before services are spawned.
func runStep(ctx context.Context, step config.Step, e *env.Env, console io.Writer) error {
	name := step.Name
	if name == "" {
		name = step.Command[0]
	}
	slog.Info("running prestart step", "step", name)
	cmd := exec.CommandContext(ctx, step.Command[0], step.Command[1:]...) // #nosec G204 -- operator-provided stack config
	cmd.Dir = step.WorkDir
	cmd.Env = e.Merge(step.Env)
	cmd.Stdout = console
	cmd.Stderr = console
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("prestart step %s: %w", name, err)
	}
	return nil
}

// waitReaped gives each monitor a bounded window to finish recording the exit
// before the history store closes, so the final stop events are persisted.
func waitReaped(procs []*supervise.Managed) {
	for _, m := range procs {
		select {
		case <-m.Done():
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// joinTailers waits for tailers to observe cancellation, bounded so exit is
// never blocked by a stuck reader.
func joinTailers(wg *sync.WaitGroup, interval time.Duration) {
	if interval <= 0 {
		interval = tail.DefaultInterval
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2*interval + time.Second):
		slog.Warn("tailers did not stop in time")
	}
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
