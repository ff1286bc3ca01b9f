package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"gigmail/internal/credential"
	"gigmail/internal/extract"
	"gigmail/internal/logx"
	"gigmail/internal/model"
	"gigmail/internal/store"
	"gigmail/internal/table"
)

const projects = "https://www.freelancer.com/projects/"

type fakeAcquirer struct {
	err   error
	calls int
}

func (a *fakeAcquirer) Acquire(context.Context, string, string) (credential.Grant, error) {
	a.calls++
	if a.err != nil {
		return credential.Grant{}, a.err
	}
	return credential.Grant{Token: &oauth2.Token{AccessToken: "access"}, Via: credential.Valid}, nil
}

type fakeSource struct {
	refs    []model.MessageRef
	details map[string]*model.MessageDetail
	listErr error
	gets    []string
}

func (s *fakeSource) ListMessages(_ context.Context, _ []string, max int64) ([]model.MessageRef, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if int64(len(s.refs)) > max {
		return s.refs[:max], nil
	}
	return s.refs, nil
}

func (s *fakeSource) GetMessage(_ context.Context, id string) (*model.MessageDetail, error) {
	s.gets = append(s.gets, id)
	d, ok := s.details[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return d, nil
}

// listingHTML renders each listing as a title anchor followed by its two
// call-to-action anchors.
func listingHTML(titles, urls []string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for i, u := range urls {
		b.WriteString("<tr><td>")
		if i < len(titles) {
			fmt.Fprintf(&b, `<a href="%s"><span>%s</span></a>`, u, titles[i])
		} else {
			fmt.Fprintf(&b, `<a href="%s"></a>`, u)
		}
		fmt.Fprintf(&b, `<a href="%s?bid"><span>Bid now</span></a>`, u)
		fmt.Fprintf(&b, `<a href="%s?more"><span>See more</span></a>`, u)
		b.WriteString("</td></tr>")
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func detail(id string, ms int64, html string) *model.MessageDetail {
	return &model.MessageDetail{
		ID:           id,
		InternalDate: ms,
		From:         "Freelancer <noreply@freelancer.com>",
		Parts:        []model.BodyPart{{MimeType: "text/html", Data: []byte(html)}},
	}
}

// twoMessages returns a mailbox where message A holds one listing and
// message B holds two.
func twoMessages() *fakeSource {
	a := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).UnixMilli()
	b := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC).UnixMilli()
	return &fakeSource{
		refs: []model.MessageRef{{ID: "A"}, {ID: "B"}},
		details: map[string]*model.MessageDetail{
			"A": detail("A", a, listingHTML([]string{"T1"}, []string{projects + "p1"})),
			"B": detail("B", b, listingHTML([]string{"T2", "T3"}, []string{projects + "q1", projects + "q2"})),
		},
	}
}

func testDeps(t *testing.T, dir string, acq Acquirer, src MailSource) Deps {
	t.Helper()
	ex, err := extract.New(extract.StrategyFreelancer, extract.Options{Location: time.UTC, Log: logx.Discard()})
	if err != nil {
		t.Fatalf("extract.New: %v", err)
	}
	return Deps{
		DataDir:           dir,
		TokenFile:         "token_gmail.json",
		AuthorizationFile: "oauth_gmail.json",
		Credentials:       acq,
		Connect: func(context.Context, string, *oauth2.Token) (MailSource, error) {
			return src, nil
		},
		Extractor: ex,
		Location:  time.UTC,
		Log:       logx.Discard(),
	}
}

func newRunContext(max int64) *RunContext {
	return &RunContext{
		Site:        "freelancer",
		Date:        "20260301",
		Query:       []string{"from:freelancer.com"},
		MaxMessages: max,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := twoMessages()
	r := &Runner{Steps: Steps(testDeps(t, dir, &fakeAcquirer{}, src)), Log: logx.Discard()}
	rc := newRunContext(10)

	if err := r.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.RunID == "" {
		t.Fatal("run id not assigned")
	}

	wantSave := filepath.Join(dir, "gmail_freelancer_20260301.csv")
	wantOut := filepath.Join(dir, "output-gmail_freelancer.csv")
	if rc.PathSave != wantSave || rc.PathOutput != wantOut {
		t.Fatalf("paths = %s, %s", rc.PathSave, rc.PathOutput)
	}
	if rc.PathToken != filepath.Join(dir, "token_gmail.json") {
		t.Fatalf("PathToken = %s", rc.PathToken)
	}

	want := model.ListingBatch{
		{Date: "2026-03-01 08:00:00", Title: "T1", URL: projects + "p1"},
		{Date: "2026-03-01 09:30:00", Title: "T2", URL: projects + "q1"},
		{Date: "2026-03-01 09:30:00", Title: "T3", URL: projects + "q2"},
	}
	saved, err := table.LoadBatch(wantSave)
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(saved) != len(want) {
		t.Fatalf("saved = %+v", saved)
	}
	for i := range want {
		if saved[i] != want[i] {
			t.Errorf("row %d = %+v; want %+v", i, saved[i], want[i])
		}
	}

	out, err := table.LoadIndexed(wantOut)
	if err != nil {
		t.Fatalf("LoadIndexed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("cleansed = %+v", out)
	}
	for i, row := range out {
		if row.Index != 1 || row.Seq != i+1 || row.ListingRow != want[i] {
			t.Errorf("cleansed %d = %+v", i, row)
		}
	}

	if len(rc.Processed) != 2 || rc.Processed[1].RowCount != 2 || rc.Processed[0].Sender != "noreply@freelancer.com" {
		t.Fatalf("processed = %+v", rc.Processed)
	}
}

func TestRun_MaxLimitsMessages(t *testing.T) {
	dir := t.TempDir()
	src := twoMessages()
	r := &Runner{Steps: Steps(testDeps(t, dir, &fakeAcquirer{}, src)), Log: logx.Discard()}
	rc := newRunContext(1)

	if err := r.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(src.gets) != 1 || src.gets[0] != "A" {
		t.Fatalf("fetched %v", src.gets)
	}
	if len(rc.Cleansed) != 1 || rc.Cleansed[0].Title != "T1" {
		t.Fatalf("cleansed = %+v", rc.Cleansed)
	}
}

func TestRun_EmptyMailboxWritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	r := &Runner{Steps: Steps(testDeps(t, dir, &fakeAcquirer{}, src)), Log: logx.Discard()}
	rc := newRunContext(5)

	if err := r.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(rc.PathOutput)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff")), "\n")
	if len(lines) != 1 || strings.TrimSpace(lines[0]) != "index,sq,date,title,url" {
		t.Fatalf("output = %q", data)
	}
}

func TestRun_ListFailureAborts(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{listErr: errors.New("quota exceeded")}
	r := &Runner{Steps: Steps(testDeps(t, dir, &fakeAcquirer{}, src)), Log: logx.Discard()}
	rc := newRunContext(5)

	err := r.Run(context.Background(), rc)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "messages" {
		t.Fatalf("err = %v", err)
	}
	if len(src.gets) != 0 {
		t.Fatalf("contents ran after failure: %v", src.gets)
	}
	if _, err := os.Stat(rc.PathSave); !os.IsNotExist(err) {
		t.Fatalf("raw file written: %v", err)
	}
	if rc.Cleansed != nil {
		t.Fatal("cleansing ran after failure")
	}
}

func TestRun_CredentialFailureAborts(t *testing.T) {
	dir := t.TempDir()
	acq := &fakeAcquirer{err: &credential.AuthError{Op: "consent", Err: errors.New("denied")}}
	r := &Runner{Steps: Steps(testDeps(t, dir, acq, twoMessages())), Log: logx.Discard()}
	rc := newRunContext(5)

	err := r.Run(context.Background(), rc)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "credentials" {
		t.Fatalf("err = %v", err)
	}
	var ae *credential.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("auth error lost: %v", err)
	}
	if rc.Source != nil {
		t.Fatal("source set after failure")
	}
}

func TestRun_MessageFetchFailureAborts(t *testing.T) {
	dir := t.TempDir()
	src := twoMessages()
	delete(src.details, "B")
	r := &Runner{Steps: Steps(testDeps(t, dir, &fakeAcquirer{}, src)), Log: logx.Discard()}
	rc := newRunContext(5)

	err := r.Run(context.Background(), rc)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "contents" {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(rc.PathSave); !os.IsNotExist(err) {
		t.Fatal("partial batch written")
	}
}

func TestRun_FieldUnsetFailsFast(t *testing.T) {
	acq := &fakeAcquirer{}
	r := &Runner{Steps: Steps(testDeps(t, t.TempDir(), acq, twoMessages())), Log: logx.Discard()}

	err := r.Run(context.Background(), &RunContext{})
	if !errors.Is(err, ErrFieldUnset) {
		t.Fatalf("err = %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "setup" {
		t.Fatalf("err = %v", err)
	}
	if acq.calls != 0 {
		t.Fatal("credentials ran after setup failure")
	}
}

func TestSteps_RequireInputs(t *testing.T) {
	deps := testDeps(t, t.TempDir(), &fakeAcquirer{}, twoMessages())
	for _, step := range Steps(deps) {
		err := step.Run(context.Background(), &RunContext{})
		if !errors.Is(err, ErrFieldUnset) {
			t.Errorf("%s: err = %v", step.Name(), err)
		}
	}

	err := (&Contents{Log: logx.Discard()}).Run(context.Background(), &RunContext{})
	for _, field := range []string{"source", "messages", "path_save"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("contents error %q does not name %s", err, field)
		}
	}
}

func TestRun_Ledger(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	deps := testDeps(t, dir, &fakeAcquirer{}, twoMessages())
	deps.Ledger = st
	r := &Runner{Steps: Steps(deps), Log: logx.Discard(), Ledger: st}

	ok := newRunContext(10)
	if err := r.Run(ctx, ok); err != nil {
		t.Fatalf("Run: %v", err)
	}
	run, err := st.GetRun(ctx, ok.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != store.StatusOK || run.Rows != 3 || run.Site != "freelancer" {
		t.Fatalf("run = %+v", run)
	}
	msgs, _ := st.LoadMessages(ctx, ok.RunID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	if n, _ := st.CountListings(ctx); n != 3 {
		t.Fatalf("listings = %d", n)
	}

	failing := testDeps(t, dir, &fakeAcquirer{}, &fakeSource{listErr: errors.New("boom")})
	failing.Ledger = st
	r = &Runner{Steps: Steps(failing), Log: logx.Discard(), Ledger: st}
	bad := newRunContext(10)
	if err := r.Run(ctx, bad); err == nil {
		t.Fatal("expected failure")
	}
	run, _ = st.GetRun(ctx, bad.RunID)
	if run.Status != store.StatusFailed || !strings.Contains(run.Error, "boom") {
		t.Fatalf("run = %+v", run)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(RawFileTemplate, "freelancer", "20260301"); got != "gmail_freelancer_20260301.csv" {
		t.Errorf("raw = %s", got)
	}
	if got := FileName(CleansedFileTemplate, "freelancer", "20260301"); got != "output-gmail_freelancer.csv" {
		t.Errorf("cleansed = %s", got)
	}
}
