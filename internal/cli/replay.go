package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wisefido-health-ingest/common/database"
	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/metrics"
	"wisefido-health-ingest/internal/models"
	"wisefido-health-ingest/internal/repository"
	"wisefido-health-ingest/internal/service"
	"wisefido-health-ingest/internal/transformer"
)

var (
	replayUser   string
	replayDryRun bool
	replayXLSX   string
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Run an export file through the pipeline in-process",
	Long: "replay translates, validates and writes an export file without going through the HTTP service. " +
		"The size gate is ignored and the file is always processed inline. With --dry-run nothing touches the " +
		"database and every chunk is acknowledged.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(replayUser)
		if err != nil {
			return fmt.Errorf("invalid --user %q: %w", replayUser, err)
		}

		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		cfg, err := loadIngestConfig()
		if err != nil {
			return err
		}
		if err := repository.VerifyChunkSizes(cfg); err != nil {
			return err
		}

		var db repository.Execer = repository.DiscardExecer{}
		if !replayDryRun {
			appCfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			conn, err := database.NewPostgresDB(&appCfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close(conn)
			db = conn
		}

		report, err := replay(cmd.Context(), cfg, db, log, userID, body)
		if err != nil {
			return err
		}

		if replayXLSX != "" {
			b, err := service.ReportWorkbook(report)
			if err != nil {
				return err
			}
			if err := os.WriteFile(replayXLSX, b, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", replayXLSX, err)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayUser, "user", "", "User ID the records belong to")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Skip the database and acknowledge every chunk")
	replayCmd.Flags().StringVar(&replayXLSX, "xlsx", "", "Also write the report as an Excel workbook")
	_ = replayCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(replayCmd)
}

func loadIngestConfig() (*config.IngestConfig, error) {
	path := ingestConfigPath
	if path == "" {
		path = os.Getenv("INGEST_CONFIG_FILE")
	}
	return config.LoadIngestConfig(path)
}

// replay 同步运行完整流水线
func replay(
	ctx context.Context,
	cfg *config.IngestConfig,
	db repository.Execer,
	log *zap.Logger,
	userID uuid.UUID,
	body []byte,
) (*models.IngestReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := service.DecodePayload(body)
	if err != nil {
		return nil, err
	}
	m := metrics.NewManager()
	svc := service.NewIngestService(
		cfg,
		transformer.NewTranslator(cfg, log),
		repository.NewBatchWriter(db, cfg, log, m),
		nil,
		m,
		log,
	)
	return svc.Process(ctx, userID, payload, models.ModeInline, nil)
}
