// Command classify prints the top predictions for one or more image files.
//
//	classify -k 3 cat.jpg dog.png
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/Brownie44l1/photo-classifier/internal/config"
	"github.com/Brownie44l1/photo-classifier/internal/logger"
	"github.com/Brownie44l1/photo-classifier/internal/model"
	"github.com/Brownie44l1/photo-classifier/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	k := flag.Int("k", cfg.Classify.TopK, "number of predictions to show")
	modelPath := flag.String("model", cfg.Model.Path, "ONNX model file")
	metadataPath := flag.String("metadata", cfg.Model.MetadataPath, "model metadata file (JSON or YAML)")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return fmt.Errorf("no image files given")
	}

	logCfg := cliLogConfig(cfg.Log)
	log, err := logger.NewLogger(&logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	modelServer, err := model.NewServer(*modelPath, *metadataPath, cfg.Model.LibraryPath)
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer modelServer.Close()

	p, err := pipeline.New(modelServer, pipeline.Options{
		DefaultK:  cfg.Classify.TopK,
		MaxPixels: cfg.Classify.MaxPixels,
	}, log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	failed := 0
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Skipping file", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}

		result, err := p.ClassifyImage(ctx, data, *k)
		if err != nil {
			log.Warn("No prediction", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}

		printResult(os.Stdout, path, result)
	}

	if failed == flag.NArg() {
		return fmt.Errorf("no image could be classified")
	}
	return nil
}

// cliLogConfig keeps log lines off stdout, which carries the result tables.
func cliLogConfig(cfg config.LogConfig) config.LogConfig {
	cfg.Format = "console"
	cfg.Output = "stderr"
	return cfg
}

func printResult(w io.Writer, path string, result pipeline.Result) {
	fmt.Fprintln(w, path)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range result.Rows {
		fmt.Fprintf(tw, "  %d: %s\t%s\n", row.Rank, row.Label, row.Percent)
	}
	_ = tw.Flush()
}
