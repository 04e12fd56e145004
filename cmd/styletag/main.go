package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/yungbote/styletag-backend/internal/app"
	"github.com/yungbote/styletag-backend/internal/cache"
	"github.com/yungbote/styletag-backend/internal/ingestion"
	"github.com/yungbote/styletag-backend/internal/platform/envutil"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/rules"
)

const usage = `usage: styletag <command> [flags]

commands:
  serve         run the HTTP API
  classify      classify one document file and print the JSON report
  train-rules   learn a rule set from ground truth JSONL
  cache-stats   print prediction cache statistics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		err = runServe(ctx, log, args)
	case "classify":
		err = runClassify(ctx, log, args)
	case "train-rules":
		err = runTrainRules(log, args)
	case "cache-stats":
		err = runCacheStats(ctx, log, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (default HTTP_ADDR)")
	_ = fs.Parse(args)

	application, err := app.New(ctx, log, app.Options{NeedLLM: true})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer application.Close()
	if *addr != "" {
		application.Cfg.HTTPAddr = *addr
	}
	return application.Serve(ctx)
}

func runClassify(ctx context.Context, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	docID := fs.String("doc-id", "", "document id (default file name)")
	out := fs.String("out", "", "write the report here instead of stdout")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("classify: exactly one input file required")
	}
	path := fs.Arg(0)

	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	if *docID != "" {
		doc.ID = *docID
	}
	if doc.ID == "" {
		doc.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	application, err := app.New(ctx, log, app.Options{NeedLLM: true})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer application.Close()

	rep, err := application.Services.Pipeline.Run(ctx, doc)
	if err != nil {
		return fmt.Errorf("classify %s: %w", path, err)
	}
	log.Info("document classified",
		"doc_id", rep.DocID,
		"score", rep.Quality.Score,
		"action", rep.Quality.Action,
		"review", rep.Review,
	)
	return writeJSON(*out, rep)
}

// readDocument accepts an ingestion document as JSON, or plain text with one
// paragraph per line.
func readDocument(path string) (ingestion.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ingestion.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc ingestion.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return ingestion.Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	}
	return ingestion.FromText("", string(raw)), nil
}

func runTrainRules(log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("train-rules", flag.ExitOnError)
	in := fs.String("in", "", "ground truth JSONL file")
	out := fs.String("out", "rules/learned_rules.json", "rule set output path")
	minSupport := fs.Int("min-support", rules.DefaultMinSupport, "minimum examples per rule")
	minConfidence := fs.Float64("min-confidence", rules.DefaultMinConfidence, "minimum rule confidence")
	report := fs.Bool("report", false, "print the rules report")
	_ = fs.Parse(args)
	if *in == "" {
		return errors.New("train-rules: -in is required")
	}

	entries, err := rules.LoadGroundTruth(*in)
	if err != nil {
		return err
	}
	examples := rules.ExamplesFromGroundTruth(entries)
	set := rules.Learn(examples, rules.LearnOptions{MinSupport: *minSupport, MinConfidence: *minConfidence})
	if err := set.Save(*out); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	log.Info("rules learned", "entries", len(entries), "examples", len(examples), "rules", set.Len(), "out", *out)
	if *report {
		fmt.Println(set.Report())
	}
	return nil
}

func runCacheStats(ctx context.Context, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("cache-stats", flag.ExitOnError)
	prune := fs.Bool("prune", false, "delete expired durable entries first")
	_ = fs.Parse(args)

	application, err := app.New(ctx, log, app.Options{})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer application.Close()

	var pruned int64
	if *prune {
		if pruned, err = application.Services.Store.Prune(ctx); err != nil {
			return fmt.Errorf("prune cache: %w", err)
		}
	}
	stats, err := application.Services.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("cache stats: %w", err)
	}
	return writeJSON("", struct {
		cache.Stats
		Pruned int64 `json:"pruned"`
		TTL    string `json:"ttl"`
	}{Stats: stats, Pruned: pruned, TTL: application.Cfg.CacheTTL.String()})
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if path == "" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
