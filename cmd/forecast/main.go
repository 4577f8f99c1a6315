package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/andresuchdata/vendcast/internal/cache"
	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/andresuchdata/vendcast/internal/drive"
	"github.com/andresuchdata/vendcast/internal/forecast"
	"github.com/andresuchdata/vendcast/internal/model"
	"github.com/andresuchdata/vendcast/internal/pipeline"
	"github.com/andresuchdata/vendcast/internal/prepare"
	"github.com/andresuchdata/vendcast/internal/repository/postgres"
	"github.com/andresuchdata/vendcast/internal/storage"
	"github.com/andresuchdata/vendcast/internal/weather"
	"github.com/andresuchdata/vendcast/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.App.LogLevel)

	app := &cli.App{
		Name:  "forecast",
		Usage: "Forecast vending sales and write refill advice",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the full pipeline and replace the refill advice tables",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "predictor",
						Usage: "Predictor to train (linear, mean)",
						Value: cfg.Forecast.Predictor,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Transaction source (postgres, drive, storage, file)",
						Value: cfg.Forecast.TransactionSource,
					},
					&cli.StringSliceFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Transaction export files for the file source",
					},
					&cli.StringSliceFlag{
						Name:  "skip",
						Usage: "Optional stages to skip (clean, enrich, correct)",
					},
					&cli.BoolFlag{
						Name:  "no-export",
						Usage: "Do not export the advice tables to storage",
					},
				},
				Action: func(c *cli.Context) error {
					return runForecast(c, cfg)
				},
			},
			{
				Name:      "encode",
				Usage:     "Frequency encode transaction exports and print the matrix shapes",
				ArgsUsage: "<file.csv>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "granularity",
						Usage: "Time bucket, D (daily) or H (hourly)",
						Value: cfg.Forecast.Granularity,
					},
				},
				Action: encode,
			},
			{
				Name:      "schema-check",
				Usage:     "Validate transaction exports against the column contract",
				ArgsUsage: "<file.csv>...",
				Action:    schemaCheck,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("forecast failed")
	}
}

func runForecast(c *cli.Context, cfg *config.Config) error {
	ctx := c.Context

	fcfg := cfg.Forecast
	fcfg.Predictor = c.String("predictor")
	if skip := c.StringSlice("skip"); len(skip) > 0 {
		fcfg.SkipStages = skip
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	sources := postgres.NewSources(db)

	store, err := storage.New(cfg.Storage, filepath.Join(cfg.App.DataDir, "exports"))
	if err != nil {
		return err
	}

	transactions, err := transactionSource(ctx, c, cfg, sources, store)
	if err != nil {
		return err
	}

	predictor, err := model.New(fcfg.Predictor)
	if err != nil {
		return err
	}

	runs := pipeline.NewRepository(db.DB)
	if err := runs.EnsureTable(ctx); err != nil {
		return err
	}

	adviceCache, err := cache.NewAdviceCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("advice cache unavailable, continuing without it")
		adviceCache = cache.NewNoopAdviceCache()
	}

	opts := []pipeline.Option{pipeline.WithRunStore(runs), pipeline.WithCache(adviceCache)}
	if cfg.Weather.APIKey != "" {
		opts = append(opts, pipeline.WithWeather(weather.NewClient(cfg.Weather), cfg.Weather))
	} else {
		logger.Log.Warn().Msg("WEATHER_API_KEY not set, weather features disabled")
	}
	if !c.Bool("no-export") {
		opts = append(opts, pipeline.WithExporter(storage.NewAdviceExporter(store, cfg.Storage.Prefix, cfg.Sink)))
	}

	driver, err := pipeline.NewDriver(fcfg, transactions, sources, predictor, postgres.NewAdviceSink(db, cfg.Sink), opts...)
	if err != nil {
		return err
	}

	run, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s failed in stage %s: %w", run.ID, run.Stage, err)
	}

	logger.Log.Info().
		Str("run_id", run.ID).
		Int("product_rows", run.ProductAdviceRows).
		Int("location_rows", run.LocationAdviceRows).
		Float64("corrected_ratio", run.CorrectedRatio).
		Msg("refill advice written")
	return nil
}

func transactionSource(ctx context.Context, c *cli.Context, cfg *config.Config, sources *postgres.Sources, store storage.ObjectStorage) (pipeline.TransactionSource, error) {
	switch strings.ToLower(c.String("source")) {
	case "", "postgres":
		return sources, nil
	case "drive":
		svc, err := drive.NewService(ctx, cfg.Drive.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		return drive.NewTransactionSource(drive.NewDownloader(svc), drive.DownloadOptions{
			FolderID:    cfg.Drive.FolderID,
			DownloadDir: cfg.Drive.DownloadDir,
		}), nil
	case "storage":
		return storageSource{store: store, prefix: "transactions/", dir: cfg.Drive.DownloadDir}, nil
	case "file":
		paths := c.StringSlice("input")
		if len(paths) == 0 {
			return nil, errors.New("the file source needs at least one --input")
		}
		return fileSource{paths: paths}, nil
	}
	return nil, fmt.Errorf("unknown transaction source %q", c.String("source"))
}

func encode(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no files given", 2)
	}
	g, err := forecast.ParseGranularity(c.String("granularity"))
	if err != nil {
		return err
	}

	txs, err := drive.ReadTransactionFiles(c.Args().Slice())
	if err != nil {
		return err
	}
	if txs, err = prepare.AddTimeFeature(txs, "weekday"); err != nil {
		return err
	}

	x, y, err := forecast.FrequencyEncode(txs, g)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "transactions: %d\n", len(txs))
	fmt.Fprintf(c.App.Writer, "rows:         %d\n", x.Len())
	fmt.Fprintf(c.App.Writer, "features:     %s\n", strings.Join(x.Columns, ", "))
	fmt.Fprintf(c.App.Writer, "products:     %d\n", len(y.Columns))
	fmt.Fprintf(c.App.Writer, "units:        %.0f\n", y.Total())
	return nil
}

func schemaCheck(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no files given", 2)
	}

	failed := 0
	for _, p := range c.Args().Slice() {
		txs, err := drive.ReadTransactionFiles([]string{p})
		if err != nil {
			failed++
			if errors.Is(err, forecast.ErrSchema) {
				fmt.Fprintf(c.App.Writer, "FAIL %s: %v\n", p, err)
				continue
			}
			return err
		}
		fmt.Fprintf(c.App.Writer, "ok   %s: %d transactions\n", p, len(txs))
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d file(s) violate the transaction contract", failed), 1)
	}
	return nil
}
