package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/Promptonauts/configrepo/internal/config"
	"github.com/Promptonauts/configrepo/internal/server"
	"github.com/Promptonauts/configrepo/pkg/configrepo"
	"github.com/Promptonauts/configrepo/pkg/observability"
	"github.com/Promptonauts/configrepo/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var poll time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and poll configured sources",
		Long: `Start the HTTP API. Every configured source is ingested at startup and
then re-read on each poll interval; a source is reloaded only when its
definition changed and validates cleanly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, GetConfig(cmd.Context()), GetLogger(cmd.Context()), poll)
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on (default :8080)")
	cmd.Flags().DurationVar(&poll, "poll", time.Minute, "Interval between source polls (0 disables polling)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, poll time.Duration) error {
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := observability.NewMetricsRegistry()
	rec := configrepo.NewReconciler(logger, observability.NewIngestMetrics(reg))
	rec.OnReload(func(rev *configrepo.Revision) {
		logger.Info("active revision changed",
			slog.String("source", rev.Source),
			slog.String("revision", rev.ID),
			slog.Time("accepted_at", rev.AcceptedAt))
	})

	sources := make([]configrepo.Source, 0, len(cfg.Sources))
	for _, name := range cfg.SourceNames() {
		sources = append(sources, configrepo.FileSource{SourceName: name, Path: cfg.Sources[name]})
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(rec, st, reg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Listen)
	})
	g.Go(func() error {
		return pollSources(gctx, rec, sources, cfg.IngestJobs, poll, logger)
	})
	g.Go(func() error {
		logJobEvents(gctx, st.Watch(), logger)
		return nil
	})
	return g.Wait()
}

func pollSources(ctx context.Context, rec *configrepo.Reconciler, sources []configrepo.Source, jobs int, every time.Duration, logger *slog.Logger) error {
	if len(sources) == 0 {
		return nil
	}
	ingest := func() error {
		results, err := rec.IngestAll(ctx, sources, jobs)
		if err != nil {
			return err
		}
		for _, res := range results {
			if res.Outcome == configrepo.OutcomeFailed {
				logger.Warn("source ingestion failed", slog.String("source", res.Source), slog.String("error", res.Error))
			}
		}
		return nil
	}

	if err := ingest(); err != nil {
		return ignoreCancel(err)
	}
	if every <= 0 {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ingest(); err != nil {
				return ignoreCancel(err)
			}
		}
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logJobEvents(ctx context.Context, events <-chan store.JobEvent, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			logger.Debug("job instance event",
				slog.String("type", string(ev.Type)),
				slog.Int64("id", ev.Job.ID),
				slog.String("job", ev.Job.Name()),
				slog.String("state", string(ev.Job.State)))
		}
	}
}
