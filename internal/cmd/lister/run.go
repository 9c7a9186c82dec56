package lister

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/originwatch/originwatch/internal/config"
	"github.com/originwatch/originwatch/internal/forge/gitea"
	kafkajournal "github.com/originwatch/originwatch/internal/journal/kafka"
	mongoscheduler "github.com/originwatch/originwatch/internal/scheduler/mongo"
	pgscheduler "github.com/originwatch/originwatch/internal/scheduler/postgres"
	"github.com/originwatch/originwatch/internal/secrets"
	"github.com/originwatch/originwatch/internal/server"
	pkglister "github.com/originwatch/originwatch/pkg/lister"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one listing pass for the configured forge instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, _ := zap.NewDevelopment()
			defer logger.Sync()
			l := logger.Named("originwatch.lister")

			ctx := cmd.Context()

			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("a config file is required (--config or ORIGINWATCH_CONFIG)")
			}

			cfg, err := config.NewFromFile(configPath)
			if err != nil {
				return err
			}

			l.Info("starting lister",
				zap.String("lister", cfg.Lister.Name),
				zap.String("instance", cfg.Lister.Instance),
				zap.String("url", cfg.Lister.URL))

			var scheduler pkglister.Scheduler
			switch cfg.Scheduler.Type {
			case "postgres":
				pg, err := pgscheduler.New(ctx, cfg.Scheduler.ConnectionString, l.Named("scheduler"))
				if err != nil {
					return err
				}
				defer pg.Close()
				if err := pg.Migrate(ctx); err != nil {
					return err
				}
				scheduler = pg
			case "mongodb":
				mg, err := mongoscheduler.New(ctx, cfg.Scheduler.ConnectionString, cfg.Scheduler.Database, l.Named("scheduler"))
				if err != nil {
					return err
				}
				defer mg.Close(ctx)
				scheduler = mg
			default:
				return fmt.Errorf("unsupported scheduler type: %s", cfg.Scheduler.Type)
			}

			opts := []pkglister.Option{
				pkglister.WithScheduler(scheduler),
				pkglister.WithLogger(l),
			}

			if cfg.Lister.CredentialsFile != "" {
				store, err := secrets.NewFileStore(cfg.Lister.CredentialsFile, l.Named("secrets"))
				if err != nil {
					return err
				}
				opts = append(opts, pkglister.WithSecretStore(store))
			}

			if cfg.Journal != nil {
				journal, err := kafkajournal.NewJournal(cfg.Journal.Brokers, cfg.Journal.Topic, l.Named("journal"))
				if err != nil {
					return err
				}
				defer journal.Close()
				opts = append(opts, pkglister.WithJournal(journal))
			}

			var source pkglister.Source
			switch cfg.Lister.Name {
			case "gitea", "gogs":
				sourceOpts := []gitea.SourceOption{gitea.WithLogger(l.Named("gitea"))}
				if cfg.Lister.PageSize > 0 {
					sourceOpts = append(sourceOpts, gitea.WithPageSize(cfg.Lister.PageSize))
				}
				source = gitea.NewSource(cfg.Lister.URL, sourceOpts...)
			default:
				return fmt.Errorf("unsupported lister: %s", cfg.Lister.Name)
			}
			opts = append(opts, pkglister.WithSource(source))

			run, err := pkglister.New(cfg.Lister.Name, cfg.Lister.Instance, cfg.Lister.URL, opts...)
			if err != nil {
				return err
			}

			if cfg.Server.Addr != "" {
				s := server.New(l.Named("server"))
				s.RegisterLister(run)

				go func() {
					if err := s.Start(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						l.Error("admin server error", zap.Error(err))
					}
				}()
			}

			stats, err := run.Run(ctx)
			if err != nil {
				return err
			}

			l.Info("listing finished",
				zap.Int("pages", stats.Pages),
				zap.Int("origins", stats.Origins))

			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file")
	viper.BindPFlag("config", cmd.Flags().Lookup("config"))
	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORIGINWATCH")

	return cmd
}
