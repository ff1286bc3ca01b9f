// Package credential decides whether a stored OAuth token can be reused,
// must be refreshed, or has to be re-acquired interactively.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
)

// Store persists tokens between runs. Load returns (nil, nil) when nothing
// has been persisted at path.
type Store interface {
	Load(path string) (*oauth2.Token, error)
	Save(tok *oauth2.Token, path string) error
}

// Authority talks to the identity provider. authPath locates the client
// authorization descriptor.
type Authority interface {
	Refresh(ctx context.Context, authPath string, tok *oauth2.Token) (*oauth2.Token, error)
	Reauthorize(ctx context.Context, authPath string) (*oauth2.Token, error)
}

// State is a step of the credential lifecycle.
type State int

const (
	NoCredential State = iota
	Loaded
	Valid
	NeedsRefresh
	NeedsReauth
	Active
)

func (s State) String() string {
	switch s {
	case NoCredential:
		return "no-credential"
	case Loaded:
		return "loaded"
	case Valid:
		return "valid"
	case NeedsRefresh:
		return "needs-refresh"
	case NeedsReauth:
		return "needs-reauth"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Grant is an active token together with the path that produced it.
type Grant struct {
	Token *oauth2.Token
	// Via is Valid, NeedsRefresh or NeedsReauth: the last decision taken
	// before the token became active.
	Via State
	// RefreshErr is set when a refresh was attempted and failed.
	RefreshErr error
}

// Manager drives the credential state machine.
type Manager struct {
	Store     Store
	Authority Authority
	Log       *slog.Logger
}

// Acquire returns an active token for the run. A stored token that is present
// and unexpired is returned without any I/O beyond the initial load.
func (m *Manager) Acquire(ctx context.Context, pathToken, pathAuthorization string) (Grant, error) {
	tok, err := m.Store.Load(pathToken)
	if err != nil {
		m.Log.Warn("stored token unreadable, treating as absent", "path", pathToken, "err", err)
		tok = nil
	}
	if tok != nil {
		m.Log.Info("existing token loaded", "path", pathToken)
	}

	var refreshErr error
	switch Decide(tok) {
	case Valid:
		m.Log.Info("valid credentials")
		return Grant{Token: tok, Via: Valid}, nil
	case NeedsReauth:
		if tok == nil {
			m.Log.Info("no credentials, reauthorizing")
		} else {
			m.Log.Info("expired and no refresh token, reauthorizing")
		}
	case NeedsRefresh:
		m.Log.Info("expired, trying refresh")
		refreshed, err := m.Authority.Refresh(ctx, pathAuthorization, tok)
		if err == nil && refreshed == nil {
			err = errors.New("refresh returned no token")
		}
		if err == nil {
			if err := m.Store.Save(refreshed, pathToken); err != nil {
				return Grant{}, fmt.Errorf("save refreshed token: %w", err)
			}
			return Grant{Token: refreshed, Via: NeedsRefresh}, nil
		}
		refreshErr = &RefreshError{Err: err}
		m.Log.Warn("refresh failed, reauthorizing", "err", err)
	}

	fresh, err := m.Authority.Reauthorize(ctx, pathAuthorization)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return Grant{}, err
		}
		return Grant{}, &AuthError{Op: "reauthorize", Err: err}
	}
	if fresh == nil {
		return Grant{}, &AuthError{Op: "reauthorize", Err: errors.New("no token returned")}
	}
	if err := m.Store.Save(fresh, pathToken); err != nil {
		return Grant{}, fmt.Errorf("save token: %w", err)
	}
	return Grant{Token: fresh, Via: NeedsReauth, RefreshErr: refreshErr}, nil
}

// Decide evaluates a loaded token. Checks run in a fixed order and the first
// match wins: absent, unexpired, expired without a refresh token, expired
// with one.
func Decide(tok *oauth2.Token) State {
	switch {
	case tok == nil:
		return NeedsReauth
	case tok.Valid():
		return Valid
	case tok.RefreshToken == "":
		return NeedsReauth
	default:
		return NeedsRefresh
	}
}
