package gmail

import (
	"context"
	"fmt"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"gigmail/internal/model"
)

// RetrievalError reports a failed mailbox query or fetch.
type RetrievalError struct {
	Op  string // "list" or "get"
	ID  string // message id for "get"
	Err error
}

func (e *RetrievalError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s message %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s messages: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Source reads messages from the authenticated user's mailbox.
type Source struct {
	svc  *gmailv1.Service
	user string
}

func NewSource(svc *gmailv1.Service) *Source {
	return &Source{svc: svc, user: "me"}
}

// ListMessages returns up to max message refs matching query. The query
// predicates are joined with spaces, which Gmail search treats as AND.
// Only one page is requested.
func (s *Source) ListMessages(ctx context.Context, query []string, max int64) ([]model.MessageRef, error) {
	if max <= 0 {
		return nil, nil
	}
	resp, err := s.svc.Users.Messages.List(s.user).
		Q(strings.Join(query, " ")).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, &RetrievalError{Op: "list", Err: err}
	}
	refs := make([]model.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, model.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// GetMessage fetches the full payload of one message.
func (s *Source) GetMessage(ctx context.Context, id string) (*model.MessageDetail, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &RetrievalError{Op: "get", ID: id, Err: err}
	}
	d := &model.MessageDetail{
		ID:           msg.Id,
		InternalDate: msg.InternalDate,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "From") {
				d.From = h.Value
				break
			}
		}
		d.Parts = flattenParts(msg.Payload)
	}
	return d, nil
}
