package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/oauth2"

	"gigmail/internal/config"
	"gigmail/internal/credential"
	"gigmail/internal/extract"
	"gigmail/internal/gmail"
	"gigmail/internal/logx"
	"gigmail/internal/pipeline"
	"gigmail/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	date := flag.String("date", time.Now().Format("20060102"), "run date, YYYYMMDD")
	site := flag.String("site", "", "site name, overrides config")
	maxMessages := flag.Int64("max", 0, "maximum messages to list, overrides config")
	flag.Parse()

	if _, err := time.Parse("20060102", *date); err != nil {
		return fmt.Errorf("invalid -date %q: want YYYYMMDD", *date)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "site":
			cfg.Site = *site
		case "max":
			cfg.MaxMessages = *maxMessages
		}
	})

	log, closeLog, err := logx.New(logx.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var tokens credential.Store = credential.FileStore{}
	if cfg.TokenStore == "keyring" {
		ks, err := credential.OpenKeyring(cfg.DataDir)
		if err != nil {
			return err
		}
		tokens = ks
	}

	strategy, err := extract.ParseStrategy(cfg.Site)
	if err != nil {
		return err
	}
	ex, err := extract.New(strategy, extract.Options{
		Location: cfg.Location(),
		Strict:   cfg.Alignment == "strict",
		Log:      log,
	})
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		DataDir:           cfg.DataDir,
		TokenFile:         cfg.TokenFile,
		AuthorizationFile: cfg.AuthorizationFile,
		Credentials: &credential.Manager{
			Store:     tokens,
			Authority: &gmail.OAuth{Log: log, Browser: gmail.OpenBrowser},
			Log:       log,
		},
		Connect: func(ctx context.Context, authPath string, tok *oauth2.Token) (pipeline.MailSource, error) {
			src, err := gmail.Connect(ctx, authPath, tok)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Extractor: ex,
		Location:  cfg.Location(),
		Log:       log,
	}
	runner := &pipeline.Runner{Log: log}
	if cfg.Ledger != "" {
		db, err := store.NewSQLiteStore(cfg.Ledger)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.Ledger = db
		runner.Ledger = db
	}
	runner.Steps = pipeline.Steps(deps)

	rc := &pipeline.RunContext{
		Site:        cfg.Site,
		Date:        *date,
		Query:       cfg.Query,
		MaxMessages: cfg.MaxMessages,
	}
	log.Info("run starting", "site", rc.Site, "date", rc.Date, "max", rc.MaxMessages)
	if err := runner.Run(ctx, rc); err != nil {
		return err
	}
	log.Info("run finished", "rows", len(rc.Cleansed), "output", rc.PathOutput)
	return nil
}
