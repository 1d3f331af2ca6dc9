package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/cookiestore"
	"github.com/xkilldash9x/foodscout/internal/mocks"
	"github.com/xkilldash9x/foodscout/internal/platform"
)

var fp = platform.Foodpanda

type fakeFactory struct {
	comps     *Components
	createErr error
}

func (f *fakeFactory) Create(ctx context.Context, cfg *config.Config) (*Components, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.comps, nil
}

func (f *fakeFactory) CookieStore(cfg *config.Config) (*cookiestore.Store, error) {
	return f.comps.Store, nil
}

// fakePrompter answers questions from a script.
type fakePrompter struct {
	mocks.MockOperator
	interactive bool
	answers     map[string]string
	asked       []string
}

func (p *fakePrompter) Prompt(ctx context.Context, q string) (string, error) {
	p.asked = append(p.asked, q)
	return p.answers[q], nil
}

func (p *fakePrompter) Password(ctx context.Context, q string) (string, error) {
	p.asked = append(p.asked, q)
	return p.answers[q], nil
}

func (p *fakePrompter) Interactive() bool { return p.interactive }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timeouts = config.TimeoutsConfig{
		Navigation: time.Second, Strategy: 10 * time.Millisecond, Signal: 10 * time.Millisecond,
		LoginStep: 10 * time.Millisecond, SecondFactor: 10 * time.Millisecond, Consent: 10 * time.Millisecond,
		Suggestions: 10 * time.Millisecond, Search: 10 * time.Millisecond, Settle: time.Second,
	}
	return cfg
}

func newFakeFactory(t *testing.T) (*fakeFactory, *mocks.ScriptedPage, *mocks.MockBrowserManager) {
	t.Helper()
	fs := afero.NewMemMapFs()
	st := cookiestore.New(fs, "/sessions", zap.NewNop())
	require.NoError(t, st.Save(fp.Name, "u1", []schemas.Cookie{{Name: "token", Value: "v", Domain: ".foodpanda.my"}}))

	page := mocks.NewScriptedPage().
		Show(fp.Signals.LoggedIn[0], fp.Address[0], fp.Search[0]).
		SetHTML(`<div class="vendor-list"><div class="vendor-list-item"><h3>Roti Place</h3><a href="/r/1">go</a></div></div>`)

	bm := new(mocks.MockBrowserManager)
	bm.On("NewSession", mock.Anything).Return(page, nil)
	bm.On("Shutdown", mock.Anything).Return(nil)

	return &fakeFactory{comps: &Components{
		Browser:  bm,
		Store:    st,
		Operator: &fakePrompter{},
		Fs:       fs,
	}}, page, bm
}

func TestRunScrapePrintsJSON(t *testing.T) {
	factory, page, bm := newFakeFactory(t)
	sink := new(mocks.MockSink)
	sink.On("Write", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil)
	sink.On("Close").Return(nil)
	factory.comps.Sink = sink

	var out bytes.Buffer
	err := runScrape(context.Background(), &out, factory, testConfig(), &scrapeOptions{
		Platform: "foodpanda", Query: "roti", Location: "Bangsar", UserID: "u1",
	})
	require.NoError(t, err)

	var results []schemas.ScrapeResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "roti", results[0].Query)
	require.Len(t, results[0].Results, 1)
	assert.Equal(t, "Roti Place", results[0].Results[0].Name)
	assert.Equal(t, "https://www.foodpanda.my/r/1", results[0].Results[0].Link)

	sink.AssertExpectations(t)
	bm.AssertCalled(t, "Shutdown", mock.Anything)
	assert.Equal(t, 1, page.CloseCount())
}

func TestRunScrapeRejectsUnknownPlatform(t *testing.T) {
	factory, _, bm := newFakeFactory(t)
	err := runScrape(context.Background(), &bytes.Buffer{}, factory, testConfig(), &scrapeOptions{
		Platform: "ubereats", Query: "x", Location: "y", UserID: "u1",
	})
	assert.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
	bm.AssertNotCalled(t, "NewSession", mock.Anything)
}

func TestRunScrapeFactoryError(t *testing.T) {
	factory := &fakeFactory{createErr: errors.New("no chrome")}
	err := runScrape(context.Background(), &bytes.Buffer{}, factory, testConfig(), &scrapeOptions{
		Platform: "foodpanda", Query: "x", Location: "y", UserID: "u1",
	})
	assert.ErrorContains(t, err, "no chrome")
}

func TestResolveCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("flags win and nothing is asked", func(t *testing.T) {
		p := &fakePrompter{interactive: true}
		creds, err := resolveCredentials(ctx, p, &scrapeOptions{UserID: "u1", Email: "a@b.c", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "u1", creds.UserID)
		assert.Empty(t, p.asked)
	})

	t.Run("interactive prompts for the rest", func(t *testing.T) {
		p := &fakePrompter{interactive: true, answers: map[string]string{
			promptUserID:   "u2",
			promptEmail:    "op@example.com",
			promptPassword: "secret",
		}}
		creds, err := resolveCredentials(ctx, p, &scrapeOptions{})
		require.NoError(t, err)
		assert.Equal(t, "u2", creds.UserID)
		assert.Equal(t, "op@example.com", creds.Email)
		assert.Equal(t, "secret", creds.Password)
		assert.Len(t, p.asked, 3)
	})

	t.Run("user id defaults to email", func(t *testing.T) {
		creds, err := resolveCredentials(ctx, &fakePrompter{}, &scrapeOptions{Email: "op@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "op@example.com", creds.UserID)
	})

	t.Run("non-interactive without identity fails", func(t *testing.T) {
		_, err := resolveCredentials(ctx, &fakePrompter{}, &scrapeOptions{})
		assert.ErrorContains(t, err, "--user")
	})
}

func TestSessionCommands(t *testing.T) {
	config.Set(testConfig())
	factory, _, _ := newFakeFactory(t)
	fs := factory.comps.Fs
	require.NoError(t, afero.WriteFile(fs, "/downloads/export.json",
		[]byte(`[{"name":"sid","value":"SECRETVALUE","domain":".foodpanda.my","sameSite":"no_restriction","hostOnly":false}]`), 0o644))

	t.Run("import", func(t *testing.T) {
		cmd := newSessionCmd(factory)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"import", "/downloads/export.json", "--user", "u9"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "Imported 1 cookies for foodpanda/u9.")
	})

	t.Run("show", func(t *testing.T) {
		cmd := newSessionCmd(factory)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"show", "--user", "u9"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "NAME")
		assert.Contains(t, out.String(), "sid")
		assert.Contains(t, out.String(), "None")
		assert.NotContains(t, out.String(), "SECRETVALUE")
	})

	t.Run("show missing", func(t *testing.T) {
		cmd := newSessionCmd(factory)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"show", "--user", "nobody"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "No stored session for foodpanda/nobody.")
	})

	t.Run("import of a missing file fails", func(t *testing.T) {
		cmd := newSessionCmd(factory)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"import", "/nope.json", "--user", "u9"})
		assert.Error(t, cmd.Execute())
	})
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "foodscout dev\n", out.String())
}
