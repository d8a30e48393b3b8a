package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"meridian/pkg/api"
	"meridian/pkg/domain"
	"meridian/pkg/ingest"
	"meridian/pkg/logger"
	"meridian/pkg/queue"
	"meridian/pkg/schedule"
	"meridian/pkg/sources"
	"meridian/pkg/store"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger API (and the fan-out schedule when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			dispatcher, err := a.dispatcher()
			if err != nil {
				return err
			}
			runner, err := a.runner(ctx)
			if err != nil {
				return err
			}

			if a.cfg.Schedule.Enabled {
				sched, err := schedule.New(a.cfg.Schedule.Cron, dispatcher, a.log)
				if err != nil {
					return err
				}
				sched.Start(ctx)
				defer sched.Stop()
			}

			gin.SetMode(a.cfg.Server.Mode)
			router := api.NewRouter(api.Deps{
				Dispatcher: dispatcher,
				Runner:     runner,
				Sources:    a.registry,
				Verifier:   api.NewVerifier(a.cfg.Webhook, a.log),
				Gatherer:   a.promRegistry,
			}, a.log)

			srv := &http.Server{
				Addr:              a.cfg.Server.Address,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("HTTP server listening", logger.String("address", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.log.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func workerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume scrape jobs from Kafka and run them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := a.runner(ctx)
			if err != nil {
				return err
			}

			handler := &queue.TypedMessageHandler[domain.Job]{
				Validate:   func(j *domain.Job) bool { return j.Valid() },
				Process:    jobProcessor(runner, a.log),
				AlwaysMark: true,
			}
			consumer, err := queue.NewConsumer(queue.ConsumerConfig{
				Brokers: a.cfg.Kafka.Brokers,
				Topic:   a.cfg.Kafka.Topic,
				GroupID: a.cfg.Kafka.GroupID,
			}, handler, a.log)
			if err != nil {
				return err
			}
			defer consumer.Close()

			return consumer.Run(ctx)
		},
	}
}

// jobProcessor runs one delivered job. Configuration problems are logged and the message is
// acknowledged, since redelivery cannot fix them.
func jobProcessor(runner *ingest.Runner, log logger.Logger) func(ctx context.Context, job *domain.Job) error {
	return func(ctx context.Context, job *domain.Job) error {
		summary, err := runner.Run(ctx, job.SourceID)
		switch {
		case errors.Is(err, sources.ErrUnknownSource):
			log.Error("Configuration for source not found", logger.String("source", job.SourceID))
			return nil
		case errors.Is(err, ingest.ErrDynamicSource):
			log.Warn("Scraping skipped, source requires dynamic fetcher", logger.String("source", job.SourceID))
			return nil
		case err != nil:
			log.Error("Scrape job stopped early",
				logger.String("source", job.SourceID),
				logger.Int("processed", summary.Processed),
				logger.Int("discovered", summary.Discovered),
				logger.Int("failed", summary.Failed),
				logger.Error(err))
			return err
		}
		log.Info("Scrape job completed",
			logger.String("source", job.SourceID),
			logger.Int("processed", summary.Processed),
			logger.Int("discovered", summary.Discovered))
		return nil
	}
}

func dispatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Enqueue one scrape job per configured source and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			dispatcher, err := a.dispatcher()
			if err != nil {
				return err
			}
			jobs, err := dispatcher.FanOut(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d jobs\n", jobs)
			return err
		},
	}
}

func scrapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <sourceId>",
		Short: "Run the scrape job for one source inline and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := a.runner(ctx)
			if err != nil {
				return err
			}
			summary, runErr := runner.Run(ctx, args[0])

			// the summary is printed even when the job stopped early
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			return runErr
		},
	}
}

func migrateCommand() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the pgvector extension, tables and the similarity function",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			if printOnly {
				ddl, err := store.New(nil, store.WithEmbeddingDims(a.cfg.Database.EmbeddingDims)).Schema()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), ddl)
				return nil
			}
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			a.log.Info("Schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
