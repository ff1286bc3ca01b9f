package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"gigmail/internal/credential"
	"gigmail/internal/extract"
	"gigmail/internal/model"
	"gigmail/internal/table"
	"gigmail/internal/util"
)

// File name templates under the data directory.
const (
	RawFileTemplate      = "gmail_{site_name}_{date}.csv"
	CleansedFileTemplate = "output-gmail_{site_name}.csv"
)

// FileName fills a template's {site_name} and {date} placeholders.
func FileName(template, site, date string) string {
	return strings.NewReplacer("{site_name}", site, "{date}", date).Replace(template)
}

// Acquirer hands out an active credential.
type Acquirer interface {
	Acquire(ctx context.Context, pathToken, pathAuthorization string) (credential.Grant, error)
}

// Connector opens a mailbox session for an active token.
type Connector func(ctx context.Context, pathAuthorization string, tok *oauth2.Token) (MailSource, error)

// ListingLedger stores what a run produced.
type ListingLedger interface {
	UpsertMessages(ctx context.Context, runID string, msgs []model.ProcessedMessage) error
	UpsertListings(ctx context.Context, runID string, rows []model.ListingRow) error
}

// Deps wires the steps to their collaborators.
type Deps struct {
	DataDir           string
	TokenFile         string
	AuthorizationFile string
	Credentials       Acquirer
	Connect           Connector
	Extractor         extract.Extractor
	Location          *time.Location
	Ledger            ListingLedger // optional; adds the record step
	Log               *slog.Logger
}

// Steps returns the run's steps in their fixed order.
func Steps(d Deps) []Step {
	steps := []Step{
		&Setup{DataDir: d.DataDir, TokenFile: d.TokenFile, AuthorizationFile: d.AuthorizationFile},
		&Credentials{Manager: d.Credentials, Connect: d.Connect},
		&Messages{Log: d.Log},
		&Contents{Extractor: d.Extractor, Location: d.Location, Log: d.Log},
		&Cleansing{Log: d.Log},
	}
	if d.Ledger != nil {
		steps = append(steps, &Record{Ledger: d.Ledger})
	}
	return steps
}

// Setup resolves the run's file paths.
type Setup struct {
	DataDir           string
	TokenFile         string
	AuthorizationFile string
}

func (s *Setup) Name() string { return "setup" }

func (s *Setup) Run(_ context.Context, rc *RunContext) error {
	if err := check(
		need("site", rc.Site != ""),
		need("date", rc.Date != ""),
	); err != nil {
		return err
	}
	rc.PathToken = s.resolve(s.TokenFile)
	rc.PathAuthorization = s.resolve(s.AuthorizationFile)
	rc.PathSave = filepath.Join(s.DataDir, FileName(RawFileTemplate, rc.Site, rc.Date))
	rc.PathOutput = filepath.Join(s.DataDir, FileName(CleansedFileTemplate, rc.Site, rc.Date))
	return nil
}

func (s *Setup) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.DataDir, name)
}

// Credentials produces an active token and opens the mailbox session.
type Credentials struct {
	Manager Acquirer
	Connect Connector
}

func (s *Credentials) Name() string { return "credentials" }

func (s *Credentials) Run(ctx context.Context, rc *RunContext) error {
	if err := check(
		need("path_token", rc.PathToken != ""),
		need("path_authorization", rc.PathAuthorization != ""),
	); err != nil {
		return err
	}
	grant, err := s.Manager.Acquire(ctx, rc.PathToken, rc.PathAuthorization)
	if err != nil {
		return err
	}
	src, err := s.Connect(ctx, rc.PathAuthorization, grant.Token)
	if err != nil {
		return fmt.Errorf("connect mailbox: %w", err)
	}
	rc.Source = src
	return nil
}

// Messages lists the run's message refs.
type Messages struct {
	Log *slog.Logger
}

func (s *Messages) Name() string { return "messages" }

func (s *Messages) Run(ctx context.Context, rc *RunContext) error {
	if err := check(
		need("source", rc.Source != nil),
		need("query", len(rc.Query) > 0),
		need("max_messages", rc.MaxMessages >= 0),
	); err != nil {
		return err
	}
	refs, err := rc.Source.ListMessages(ctx, rc.Query, rc.MaxMessages)
	if err != nil {
		return err
	}
	rc.Messages = refs
	rc.MessagesListed = true
	s.Log.Info("messages listed", "count", len(refs), "max", rc.MaxMessages)
	return nil
}

// Contents fetches each message, extracts its rows and saves the merged batch.
type Contents struct {
	Extractor extract.Extractor
	Location  *time.Location
	Log       *slog.Logger
}

func (s *Contents) Name() string { return "contents" }

func (s *Contents) Run(ctx context.Context, rc *RunContext) error {
	if err := check(
		need("source", rc.Source != nil),
		need("messages", rc.MessagesListed),
		need("path_save", rc.PathSave != ""),
	); err != nil {
		return err
	}

	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	domains := util.QueryDomains(rc.Query)
	batch := make(model.ListingBatch, 0)
	processed := make([]model.ProcessedMessage, 0, len(rc.Messages))
	for _, ref := range rc.Messages {
		d, err := rc.Source.GetMessage(ctx, ref.ID)
		if err != nil {
			return err
		}
		sender := util.NormalizeSender(d.From)
		if len(domains) > 0 && !util.MatchesDomain(util.SenderDomain(sender), domains) {
			s.Log.Warn("unexpected sender", "message", ref.ID, "from", d.From)
		}
		rows, err := s.Extractor.ExtractRows(d)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			s.Log.Warn("no listings in message", "message", ref.ID)
		}
		batch = append(batch, rows...)
		processed = append(processed, model.ProcessedMessage{
			ID:       ref.ID,
			Sender:   sender,
			Date:     extract.FormatTimestamp(d.InternalDate, loc),
			RowCount: len(rows),
		})
	}

	if err := table.SaveBatch(rc.PathSave, batch); err != nil {
		return err
	}
	rc.Batch = batch
	rc.Processed = processed
	rc.BatchSaved = true
	s.Log.Info("saved csv", "path", rc.PathSave, "rows", len(batch))
	return nil
}

// Cleansing reloads the saved batch, adds the positional columns and writes
// the scraping input.
type Cleansing struct {
	Log *slog.Logger
}

func (s *Cleansing) Name() string { return "cleansing" }

func (s *Cleansing) Run(_ context.Context, rc *RunContext) error {
	if err := check(
		need("batch_saved", rc.BatchSaved),
		need("path_save", rc.PathSave != ""),
		need("path_output", rc.PathOutput != ""),
	); err != nil {
		return err
	}
	batch, err := table.LoadBatch(rc.PathSave)
	if err != nil {
		return err
	}
	rows := table.Cleanse(batch)
	if err := table.SaveIndexed(rc.PathOutput, rows); err != nil {
		return err
	}
	rc.Cleansed = rows
	s.Log.Info("saved csv", "path", rc.PathOutput, "rows", len(rows))
	return nil
}

// Record stores the run's messages and cleansed listings in the ledger.
type Record struct {
	Ledger ListingLedger
}

func (s *Record) Name() string { return "record" }

func (s *Record) Run(ctx context.Context, rc *RunContext) error {
	if err := check(
		need("run_id", rc.RunID != ""),
		need("cleansed", rc.Cleansed != nil),
	); err != nil {
		return err
	}
	if err := s.Ledger.UpsertMessages(ctx, rc.RunID, rc.Processed); err != nil {
		return fmt.Errorf("record messages: %w", err)
	}
	rows := make([]model.ListingRow, len(rc.Cleansed))
	for i, r := range rc.Cleansed {
		rows[i] = r.ListingRow
	}
	if err := s.Ledger.UpsertListings(ctx, rc.RunID, rows); err != nil {
		return fmt.Errorf("record listings: %w", err)
	}
	return nil
}
