// Ingest: builds the knowledge-base index from the data directory, and with
// -watch keeps rebuilding it as the data files change.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/app"
	"github.com/becomeliminal/nim-sleepcoach/config"
	"github.com/becomeliminal/nim-sleepcoach/ingest"
	"github.com/becomeliminal/nim-sleepcoach/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to a YAML config file")
	watch := flag.Bool("watch", false, "rebuild the index whenever data files change")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logs := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	embedder, err := app.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	defer embedder.Close()

	builder, err := ingest.NewBuilder(embedder, cfg.Embedding.CacheSize)
	if err != nil {
		return err
	}
	defer builder.Close()

	if _, err := builder.Run(ctx, cfg.DataDir, cfg.IndexPath); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	w, err := ingest.NewWatcher(builder, cfg.DataDir, cfg.IndexPath, 0)
	if err != nil {
		return err
	}
	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
