package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/internal/config"
	"github.com/partshub/runtime/internal/platform/database"
	"github.com/partshub/runtime/internal/sync"
	"github.com/partshub/runtime/system/events"
)

var (
	flagSource    string
	flagEntities  []string
	flagChunkSize int
	flagDryRun    bool
)

func main() {
	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Run the parts-catalog data sync pipeline from the command line",
	}
	root.PersistentFlags().StringVarP(&flagSource, "source", "s", "as400", "Source connector: as400, filemaker, or file")
	root.PersistentFlags().StringSliceVarP(&flagEntities, "entity-kind", "e", []string{"product", "pricing", "stock"}, "Entity kinds to import")
	root.PersistentFlags().IntVar(&flagChunkSize, "chunk-size", sync.DefaultChunkSize, "Records per chunk")
	root.PersistentFlags().BoolVarP(&flagDryRun, "dry-run", "d", false, "Extract, process, and validate without importing")

	root.AddCommand(newImportAllCommand())
	root.AddCommand(newImportAutocareCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newImportAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-all",
		Short: "Import every configured entity kind from one source in sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), flagSource, flagEntities)
		},
	}
}

func newImportAutocareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-autocare",
		Short: "Import the AutoCare-standard entity kinds (product, measurement) from FileMaker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), "filemaker", []string{"product", "measurement"})
		},
	}
}

func runImport(ctx context.Context, source string, entityKinds []string) error {
	log := logging.New("syncctl", "info", "text")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.OpenSqlx(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := sync.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure sync schema: %w", err)
	}

	connector, connectorKind, err := buildConnector(source, cfg, log)
	if err != nil {
		return err
	}

	history := sync.NewHistoryRepository(db)
	guard := sync.NewActiveKindGuard()

	overallSuccess := true
	totalStart := time.Now()
	var totalExtracted, totalCreated, totalUpdated, totalErrors int

	for _, kindName := range entityKinds {
		kind := sync.EntityKind(kindName)

		pipeline := sync.NewPipeline(sync.PipelineConfig{
			Kind:      connectorKind,
			Connector: connector,
			DB:        db,
			Logger:    log,
			History:   history,
			Guard:     guard,
			ChunkSize: flagChunkSize,
		})

		result, err := pipeline.Run(ctx, kind, tableNameForEntity(kind), flagChunkSize, flagDryRun)
		fmt.Printf("\nEntity Kind: %s\n", kindName)
		if err != nil {
			overallSuccess = false
			fmt.Printf("  Status: Failed\n  Error: %s\n", err.Error())
			continue
		}

		fmt.Printf("  Status: %s\n", statusLabel(result))
		fmt.Printf("  Extracted: %d records\n", result.RecordsExtracted)
		fmt.Printf("  Processed: %d records\n", result.RecordsProcessed)
		fmt.Printf("  Validated: %d records\n", result.RecordsValidated)
		fmt.Printf("  Created:   %d records\n", result.RecordsCreated)
		fmt.Printf("  Updated:   %d records\n", result.RecordsUpdated)
		fmt.Printf("  Errors:    %d records\n", result.RecordsWithErrors)
		fmt.Printf("  Timing: extract=%s process=%s validate=%s import=%s total=%s\n",
			result.ExtractTime, result.ProcessTime, result.ValidateTime, result.ImportTime, result.TotalTime)

		totalExtracted += result.RecordsExtracted
		totalCreated += result.RecordsCreated
		totalUpdated += result.RecordsUpdated
		totalErrors += result.RecordsWithErrors
		if result.RecordsWithErrors > 0 {
			overallSuccess = false
		}
	}

	fmt.Printf("\nOverall Summary (in %s):\n", time.Since(totalStart))
	fmt.Printf("  Total Extracted: %d records\n", totalExtracted)
	fmt.Printf("  Total Created:   %d records\n", totalCreated)
	fmt.Printf("  Total Updated:   %d records\n", totalUpdated)
	fmt.Printf("  Total Errors:    %d records\n", totalErrors)

	if !overallSuccess {
		return fmt.Errorf("import failed for one or more entity kinds")
	}
	fmt.Println("\nAll imports completed successfully!")
	return nil
}

func statusLabel(result sync.PipelineResult) string {
	if result.RecordsWithErrors > 0 {
		return "Completed with errors"
	}
	return "Success"
}

// tableNameForEntity maps an entity kind to the source table a bare
// query extracts from, consumed by the connector's whitelist check the
// same way a hand-written table name would be.
func tableNameForEntity(kind sync.EntityKind) string {
	switch kind {
	case sync.EntityProduct:
		return "PRODUCTS"
	case sync.EntityPricing:
		return "PRODUCT_PRICING"
	case sync.EntityStock:
		return "PRODUCT_STOCK"
	case sync.EntityMeasurement:
		return "PRODUCT_MEASUREMENTS"
	default:
		return ""
	}
}

func buildConnector(source string, cfg *config.Config, log *logging.Logger) (sync.Connector, events.ConnectorKind, error) {
	switch source {
	case "as400":
		odbcCfg := sync.ODBCConfig{DSN: cfg.Sync.AS400DSN, Database: cfg.Sync.AS400DSN}
		return sync.NewAS400Connector(odbcCfg, log), events.ConnectorAS400, nil
	case "filemaker":
		odbcCfg := sync.ODBCConfig{
			DSN:      cfg.Sync.FileMakerURL,
			Username: cfg.Sync.FileMakerUser,
			Password: cfg.Sync.FileMakerPassword,
			Database: cfg.Sync.FileMakerDB,
		}
		return sync.NewFileMakerConnector(odbcCfg, log), events.ConnectorFileMaker, nil
	case "file", "csv":
		return sync.NewFileConnector(sync.FileConnectorConfig{Path: cfg.Sync.FlatFileDir, Format: sync.FormatCSV}), events.ConnectorFile, nil
	default:
		return nil, "", fmt.Errorf("unsupported source type: %s", source)
	}
}
