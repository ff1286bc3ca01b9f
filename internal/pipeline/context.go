// Package pipeline runs the mailbox ingestion steps in a fixed order over a
// single RunContext.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gigmail/internal/model"
)

// MailSource is the mailbox a run reads from.
type MailSource interface {
	ListMessages(ctx context.Context, query []string, max int64) ([]model.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*model.MessageDetail, error)
}

// RunContext is the state of one run. The first block is supplied by the
// caller; every later block is filled by the step named above it.
type RunContext struct {
	Site        string
	Date        string // YYYYMMDD
	Query       []string
	MaxMessages int64
	RunID       string // assigned by the Runner when empty

	// setup
	PathToken         string
	PathAuthorization string
	PathSave          string
	PathOutput        string

	// credentials
	Source MailSource

	// messages
	Messages       []model.MessageRef
	MessagesListed bool

	// contents
	Batch      model.ListingBatch
	Processed  []model.ProcessedMessage
	BatchSaved bool

	// cleansing
	Cleansed []model.IndexedRow
}

// ErrFieldUnset is returned when a step starts before the fields it reads
// have been populated.
var ErrFieldUnset = errors.New("run context field unset")

func need(name string, ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrFieldUnset, name)
}

// check joins the failed requirements, or returns nil.
func check(errs ...error) error {
	return errors.Join(errs...)
}
