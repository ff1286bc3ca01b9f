package gmail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"gigmail/internal/credential"
)

// Scopes requested for the mailbox. The pipeline only reads.
var Scopes = []string{gmailv1.GmailReadonlyScope}

// OAuth implements credential.Authority against Google's OAuth endpoints,
// using the installed-app client descriptor at authPath.
type OAuth struct {
	Log *slog.Logger
	// Out receives the interactive prompts, In supplies the pasted code.
	// They default to os.Stderr and os.Stdin.
	Out io.Writer
	In  io.Reader
	// RedirectWait bounds the wait for the loopback redirect before falling
	// back to manual paste. Zero means two minutes.
	RedirectWait time.Duration
	// Browser opens the consent URL; nil leaves it to the user.
	Browser func(url string) error
}

// LoadConfig parses the client authorization descriptor.
func LoadConfig(authPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(authPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", authPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	return cfg, nil
}

// Refresh exchanges tok's refresh token for a new access token.
func (o *OAuth) Refresh(ctx context.Context, authPath string, tok *oauth2.Token) (*oauth2.Token, error) {
	cfg, err := LoadConfig(authPath)
	if err != nil {
		return nil, err
	}
	expired := *tok
	expired.AccessToken = ""
	fresh, err := cfg.TokenSource(ctx, &expired).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, nil
}

// Reauthorize runs the installed-app consent flow.
func (o *OAuth) Reauthorize(ctx context.Context, authPath string) (*oauth2.Token, error) {
	cfg, err := LoadConfig(authPath)
	if err != nil {
		return nil, &credential.AuthError{Op: "load descriptor", Err: err}
	}
	tok, err := o.tokenFromWeb(ctx, cfg)
	if err != nil {
		return nil, &credential.AuthError{Op: "consent", Err: err}
	}
	return tok, nil
}

// Connect establishes a mailbox session for an active token.
func Connect(ctx context.Context, authPath string, tok *oauth2.Token) (*Source, error) {
	cfg, err := LoadConfig(authPath)
	if err != nil {
		return nil, err
	}
	client := cfg.Client(ctx, tok)
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewSource(svc), nil
}

func (o *OAuth) out() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stderr
}

func (o *OAuth) in() io.Reader {
	if o.In != nil {
		return o.In
	}
	return os.Stdin
}

// tokenFromWeb runs a loopback HTTP server to capture the auth code.
// If that fails or times out, it falls back to manual paste (code or URL).
func (o *OAuth) tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	w := o.out()
	type result struct {
		code string
	}
	resCh := make(chan result, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		port := ln.Addr().(*net.TCPAddr).Port
		redirect := fmt.Sprintf("http://127.0.0.1:%d/", port)
		oldRedirect := cfg.RedirectURL
		cfg.RedirectURL = redirect

		mux := http.NewServeMux()
		srv := &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(rw, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(rw, "Authentication complete. You can close this window.")
			select {
			case resCh <- result{code: code}:
			default:
			}
			go func() { _ = srv.Shutdown(context.Background()) }()
		})
		go func() { _ = srv.Serve(ln) }()

		authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintln(w, "Open this URL in your browser to authorize gigmail:")
		fmt.Fprintln(w, authURL)
		fmt.Fprintf(w, "Waiting for redirect on %s …\n", redirect)
		if o.Browser != nil {
			if err := o.Browser(authURL); err != nil {
				o.Log.Debug("open browser failed", "err", err)
			}
		}

		wait := o.RedirectWait
		if wait <= 0 {
			wait = 120 * time.Second
		}
		select {
		case <-ctx.Done():
			_ = srv.Shutdown(context.Background())
			cfg.RedirectURL = oldRedirect
			return nil, ctx.Err()
		case r := <-resCh:
			tok, err := cfg.Exchange(ctx, strings.TrimSpace(r.code))
			// Restore redirect only after the exchange to avoid invalid_grant.
			cfg.RedirectURL = oldRedirect
			if err != nil {
				return nil, fmt.Errorf("token exchange: %w", err)
			}
			o.Log.Info("authentication successful")
			return tok, nil
		case <-time.After(wait):
			_ = srv.Shutdown(context.Background())
			cfg.RedirectURL = oldRedirect
			fmt.Fprintln(w, "Timeout waiting for redirect; falling back to manual paste.")
		}
	} else {
		o.Log.Warn("loopback listener unavailable", "err", err)
	}

	// Manual paste fallback.
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(w, "Open this URL in your browser to authorize gigmail:")
	fmt.Fprintln(w, authURL)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(w, "> ")

	sc := bufio.NewScanner(o.in())
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := codeFromInput(sc.Text())
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	o.Log.Info("authentication successful")
	return tok, nil
}

// codeFromInput accepts either a bare code or the full redirect URL.
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	c := u.Query().Get("code")
	if c == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return strings.TrimSpace(c), nil
}
