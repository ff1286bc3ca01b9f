package model

// MessageRef identifies one mail item returned by the lister.
type MessageRef struct {
	ID       string
	ThreadID string
}

// BodyPart is one leaf MIME part of a fetched message, body already decoded.
type BodyPart struct {
	MimeType string
	Data     []byte
}

// MessageDetail is the full payload for one MessageRef.
type MessageDetail struct {
	ID           string
	InternalDate int64  // milliseconds since epoch
	From         string // raw From header, may be empty
	Parts        []BodyPart
}

// ListingRow is one (date, title, url) record extracted from a message.
type ListingRow struct {
	Date  string
	Title string
	URL   string
}

// ListingBatch is the merged, ordered set of rows for one run.
type ListingBatch []ListingRow

// IndexedRow is a ListingRow with the positional columns added by cleansing.
type IndexedRow struct {
	Index int // constant batch index, reserved for multi-batch runs
	Seq   int // 1-based, contiguous within a batch
	ListingRow
}

// ProcessedMessage is what the ledger keeps about a message handled in a run.
type ProcessedMessage struct {
	ID       string
	Sender   string // normalized address
	Date     string
	RowCount int
}
