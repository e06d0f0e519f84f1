// Command vaidya is an interactive client for the medical document backend:
// upload a report, watch it process, then listen to, question, and act on the
// analysis from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tanmayd/vaidya/internal/config"
	"github.com/tanmayd/vaidya/internal/health"
	"github.com/tanmayd/vaidya/internal/observe"
	"github.com/tanmayd/vaidya/internal/resilience"
	"github.com/tanmayd/vaidya/internal/scheme"
	"github.com/tanmayd/vaidya/internal/session"
	"github.com/tanmayd/vaidya/pkg/audio/clock"
	"github.com/tanmayd/vaidya/pkg/backend"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	filePath := flag.String("file", "", "document to upload immediately on startup")
	lang := flag.String("lang", "", "override the configured language (en, hi, kn, ta, te)")
	listenAddr := flag.String("listen", "", "address for /metrics, /healthz and /readyz (disabled when empty)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vaidya: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vaidya: %v\n", err)
		}
		return 1
	}
	if *lang != "" {
		l := config.Language(*lang)
		if !l.IsValid() {
			fmt.Fprintf(os.Stderr, "vaidya: unsupported language %q\n", *lang)
			return 1
		}
		cfg.Language = l
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.Level.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("vaidya starting",
		"config", *configPath,
		"backend", cfg.Backend.BaseURL,
		"language", cfg.Language,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Backend client ────────────────────────────────────────────────────────
	brk := resilience.NewBreaker(resilience.Settings{Name: "backend"})
	client, err := backend.NewHTTPClient(cfg.Backend.BaseURL,
		backend.WithAPIKey(cfg.Backend.APIKey),
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		backend.WithBreaker(brk),
		backend.WithRecorder(observe.DefaultMetrics()),
	)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}

	// ── Session controller ────────────────────────────────────────────────────
	ctrl := session.NewController(client, clock.NewPlayer(), cfg)
	ctrl.OnChange(printTransition)

	g, gctx := errgroup.WithContext(ctx)

	// ── Sidecar listener (optional) ───────────────────────────────────────────
	if *listenAddr != "" {
		mux := http.NewServeMux()
		health.New(health.Backend(client)).Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		srv := &http.Server{Addr: *listenAddr, Handler: mux}
		g.Go(func() error {
			slog.Info("sidecar listening", "addr", *listenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("sidecar listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Startup upload ────────────────────────────────────────────────────────
	if *filePath != "" {
		if err := uploadFile(gctx, ctrl, *filePath); err != nil {
			fmt.Fprintf(os.Stderr, "vaidya: %v\n", err)
		}
	}

	// ── Interactive loop ──────────────────────────────────────────────────────
	g.Go(func() error {
		return repl(gctx, ctrl)
	})

	err = g.Wait()

	// ── Graceful teardown ─────────────────────────────────────────────────────
	resetCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rerr := ctrl.Reset(resetCtx); rerr != nil {
		slog.Warn("session reset error on shutdown", "err", rerr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// repl reads commands from stdin until quit, EOF, or ctx cancellation.
func repl(ctx context.Context, ctrl *session.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println("vaidya ready — type 'help' for commands")
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := dispatch(ctx, ctrl, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// dispatch runs one REPL command. Returns true when the loop should exit.
func dispatch(ctx context.Context, ctrl *session.Controller, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "upload":
		if len(args) != 1 {
			return false, errors.New("usage: upload <path>")
		}
		return false, uploadFile(ctx, ctrl, args[0])
	case "status":
		printStatus(ctrl.Snapshot())
	case "play":
		return false, ctrl.PlaySummary(ctx)
	case "pause":
		ctrl.Audio().Pause()
	case "resume":
		ctrl.Audio().Resume()
	case "replay":
		ctrl.Audio().Replay()
	case "seek":
		if len(args) != 1 {
			return false, errors.New("usage: seek <seconds>")
		}
		sec, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("bad position %q", args[0])
		}
		ctrl.Audio().Seek(sec)
	case "speed":
		if len(args) != 1 {
			return false, errors.New("usage: speed <rate>")
		}
		rate, err := strconv.ParseFloat(args[0], 64)
		if err != nil || rate < 0.5 || rate > 2.0 {
			return false, fmt.Errorf("rate must be between 0.5 and 2.0")
		}
		ctrl.Audio().SetSpeed(rate)
	case "ask":
		if len(args) == 0 {
			return false, errors.New("usage: ask <question>")
		}
		turn, err := ctrl.Ask(ctx, strings.Join(args, " "))
		if err != nil && turn.Text == "" {
			return false, err
		}
		fmt.Println(turn.Text)
		if turn.Answer != nil && turn.Answer.ShouldAskDoctor {
			fmt.Println("(worth raising with your doctor)")
		}
	case "schemes":
		return false, matchSchemes(ctx, ctrl, args)
	case "sms":
		if len(args) < 1 {
			return false, errors.New("usage: sms <phone> [schemes]")
		}
		includeSchemes := len(args) > 1 && args[1] == "schemes"
		receipt, err := ctrl.SendSummarySMS(ctx, args[0], includeSchemes)
		if err != nil {
			return false, err
		}
		fmt.Printf("sent (message id %s)\n", receipt.MessageID)
	case "retry":
		return false, ctrl.RetryAnalysis(ctx)
	case "reset":
		return false, ctrl.Reset(ctx)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q — type 'help'", cmd)
	}
	return false, nil
}

func uploadFile(ctx context.Context, ctrl *session.Controller, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	return ctrl.Upload(ctx, backend.Document{
		Name: path,
		Data: data,
	})
}

// matchSchemes parses "schemes <state> <income> <age> [bpl] [cond,cond…]".
func matchSchemes(ctx context.Context, ctrl *session.Controller, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: schemes <state> <below-1l|1l-3l|3l-5l|above-5l> <age> [bpl] [condition,condition]")
	}
	age, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("bad age %q", args[2])
	}
	p := scheme.Profile{
		State:      args[0],
		IncomeBand: args[1],
		Age:        age,
	}
	for _, extra := range args[3:] {
		if extra == "bpl" {
			p.BPL = true
			continue
		}
		p.Conditions = append(p.Conditions, strings.Split(extra, ",")...)
	}

	result, err := ctrl.MatchSchemes(ctx, p)
	if err != nil {
		return err
	}
	if result.Count == 0 {
		fmt.Println("no matching schemes found")
		return nil
	}
	for _, s := range result.Schemes {
		fmt.Printf("- %s", s.Name)
		if s.Benefits != "" {
			fmt.Printf(" — %s", s.Benefits)
		}
		fmt.Println()
		if s.ApplyLink != "" {
			fmt.Printf("  apply: %s\n", s.ApplyLink)
		}
	}
	if result.Summary != "" {
		fmt.Println(result.Summary)
	}
	return nil
}

// printTransition renders each session state change.
func printTransition(snap session.Snapshot) {
	switch snap.Step {
	case session.StepProcessing:
		if snap.LastError != nil {
			fmt.Printf("\nanalysis failed: %v\ntype 'retry' to try again\n", snap.LastError)
			return
		}
		msg := snap.Message
		if msg == "" {
			msg = string(snap.State)
		}
		fmt.Printf("\rprocessing… %3d%% (%s)", snap.Progress, msg)
	case session.StepResults:
		fmt.Println()
		printAnalysis(snap.Analysis)
	case session.StepUpload:
		if snap.LastError != nil {
			fmt.Printf("\nfailed: %v\n", snap.LastError)
		}
	}
}

func printAnalysis(a *backend.Analysis) {
	if a == nil {
		return
	}
	if a.Emergency != nil && a.Emergency.Detected {
		fmt.Println("⚠ URGENT:", a.Emergency.Reason)
		if a.Emergency.Advice != "" {
			fmt.Println(" ", a.Emergency.Advice)
		}
	}
	fmt.Println(a.Summary)
	if len(a.AbnormalValues) > 0 {
		fmt.Println("\nout-of-range values:")
		for _, v := range a.AbnormalValues {
			fmt.Printf("  %s: %s", v.Name, v.Value)
			if v.NormalRange != "" {
				fmt.Printf(" (normal %s)", v.NormalRange)
			}
			fmt.Println()
		}
	}
	if len(a.QuestionsForDoctor) > 0 {
		fmt.Println("\nquestions for your doctor:")
		for _, q := range a.QuestionsForDoctor {
			fmt.Println("  -", q)
		}
	}
	fmt.Printf("\nconfidence: %.0f%% — type 'play' to listen, 'ask <question>' to follow up\n", a.Confidence*100)
}

func printStatus(snap session.Snapshot) {
	switch snap.Step {
	case session.StepUpload:
		fmt.Println("no document — 'upload <path>' to start")
	case session.StepProcessing:
		fmt.Printf("processing %s: %d%% (%s)\n", snap.SessionID, snap.Progress, snap.State)
	case session.StepResults:
		fmt.Printf("results ready for %s\n", snap.SessionID)
	}
	if snap.LastError != nil {
		fmt.Printf("last error: %v\n", snap.LastError)
	}
}

func printHelp() {
	fmt.Print(`commands:
  upload <path>                 upload a report (PDF, JPEG, PNG, TIFF)
  status                        show where the session is
  play | pause | resume         listen to the summary
  replay | seek <s> | speed <x> playback controls
  ask <question>                ask a follow-up about the results
  schemes <state> <income> <age> [bpl] [conds]
                                check welfare scheme eligibility
  sms <phone> [schemes]         text the summary to a phone
  retry                         refetch a failed analysis
  reset                         discard the session
  quit                          exit
`)
}
