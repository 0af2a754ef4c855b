package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quizlive/player/internal/authority"
	"github.com/quizlive/player/internal/config"
	"github.com/quizlive/player/internal/logging"
	"github.com/quizlive/player/internal/render"
	"github.com/quizlive/player/internal/session"
)

func newPlayCmd() *cobra.Command {
	var (
		sessionID string
		name      string
		playerID  string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a session and play it to the end",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" && playerID == "" {
				return fmt.Errorf("either --session or --player is required")
			}
			return runPlay(cmd.Context(), sessionID, name, playerID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to join")
	cmd.Flags().StringVar(&name, "name", "anonymous", "display name used when joining")
	cmd.Flags().StringVar(&playerID, "player", "", "rejoin with an already-issued player id")
	return cmd
}

func runPlay(ctx context.Context, sessionID, name, playerID string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Name, cfg.Env)
	ctx = logging.IntoContext(ctx, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	client := authority.NewClient(cfg.Authority.BaseURL, &http.Client{Timeout: cfg.Authority.HTTPTimeout})

	if playerID == "" {
		playerID, err = client.Join(ctx, sessionID, name)
		if err != nil {
			return fmt.Errorf("join session %s: %w", sessionID, err)
		}
		logger.Info().Str("player_id", playerID).Msg("joined session")
	}

	renderer := render.New(os.Stdout)
	sess := session.New(playerID, client, clockwork.NewRealClock(), logger, session.Options{
		PostSubmitDelay: cfg.Polling.PostSubmitDelay,
		OnChange:        renderer.Render,
	})
	runner := session.NewRunner(sess, clockwork.NewRealClock(), logger, session.RunnerOptions{
		StatusInterval:   cfg.Polling.StatusInterval,
		QuestionInterval: cfg.Polling.QuestionInterval,
	})

	go readInput(ctx, sess, os.Stdin)

	renderer.Render(sess.Snapshot())
	snap, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	renderer.Render(snap)
	if snap.Phase == session.PhaseErrored {
		return fmt.Errorf("%s", snap.Err)
	}
	return nil
}

// readInput maps terminal lines onto selection gestures: a number selects
// (or toggles) that answer id, "ok" confirms a multiple-choice selection.
func readInput(ctx context.Context, sess *session.Session, in *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "ok" || line == "submit":
			sess.ConfirmSubmit(ctx)
		default:
			id, err := strconv.ParseInt(line, 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "type an answer id, or \"ok\" to confirm\n")
				continue
			}
			sess.SelectAnswer(ctx, id)
		}
	}
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics listener stopped")
	}
}
