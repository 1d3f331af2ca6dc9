package cookiestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/secrets"
)

const root = "/data/sessions"

func newTestStore(t *testing.T, opts ...Option) (*Store, afero.Fs, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	fs := afero.NewMemMapFs()
	return New(fs, root, zap.New(core), opts...), fs, logs
}

func expiresAt(v float64) *float64 { return &v }

func sampleCookies() []schemas.Cookie {
	return []schemas.Cookie{
		{Name: "session_id", Value: "abc123", Domain: ".foodpanda.my", Path: "/", Secure: true,
			HTTPOnly: true, SameSite: schemas.SameSiteLax, Expires: expiresAt(1234567890)},
		{Name: "token", Value: "xyz789", Domain: ".foodpanda.my", Path: "/", Secure: true,
			SameSite: schemas.SameSiteNone},
	}
}

func TestNormalize(t *testing.T) {
	t.Run("maps foreign sameSite vocabulary", func(t *testing.T) {
		in := []schemas.Cookie{
			{Name: "a", SameSite: "no_restriction"},
			{Name: "b", SameSite: "lax"},
			{Name: "c", SameSite: "strict"},
			{Name: "d"},
			{Name: "e", SameSite: "LAX"},
			{Name: "f", SameSite: "unspecified"},
			{Name: "g", SameSite: "Strict"},
		}
		out := Normalize(in)
		want := []schemas.SameSite{"None", "Lax", "Strict", "None", "Lax", "None", "Strict"}
		for i, w := range want {
			assert.Equal(t, w, out[i].SameSite, "cookie %s", out[i].Name)
		}
	})

	t.Run("fills defaults", func(t *testing.T) {
		out := Normalize([]schemas.Cookie{{Name: "test"}})
		assert.Equal(t, schemas.Cookie{Name: "test", Path: "/", SameSite: schemas.SameSiteNone}, out[0])
	})

	t.Run("preserves existing valid fields", func(t *testing.T) {
		in := []schemas.Cookie{{Name: "test", Value: "value", Domain: "example.com", Path: "/api",
			Secure: true, HTTPOnly: true, Expires: expiresAt(1234567890)}}
		out := Normalize(in)
		assert.Equal(t, "/api", out[0].Path)
		assert.Equal(t, "example.com", out[0].Domain)
		assert.True(t, out[0].Secure)
		assert.True(t, out[0].HTTPOnly)
		require.NotNil(t, out[0].Expires)
		assert.Equal(t, 1234567890.0, *out[0].Expires)
	})

	t.Run("drops extension bookkeeping but keeps other extras", func(t *testing.T) {
		var in []schemas.Cookie
		require.NoError(t, json.Unmarshal([]byte(`[{"name":"x","hostOnly":true,"storeId":"store123",
			"sameSite":"lax","priority":"High"}]`), &in))

		out := Normalize(in)
		assert.NotContains(t, out[0].Extra, "hostOnly")
		assert.NotContains(t, out[0].Extra, "storeId")
		assert.Contains(t, out[0].Extra, "priority")
		assert.Equal(t, schemas.SameSiteLax, out[0].SameSite)
		assert.Contains(t, in[0].Extra, "hostOnly", "input must not be mutated")
	})

	t.Run("is idempotent", func(t *testing.T) {
		var in []schemas.Cookie
		require.NoError(t, json.Unmarshal([]byte(`[{"name":"x","hostOnly":true,"sameSite":"no_restriction"},
			{"name":"y","path":"/p","sameSite":"STRICT","expires":5},{"value":"v"}]`), &in))

		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Normalize(nil))
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, fs, _ := newTestStore(t)

	require.NoError(t, store.Save("foodpanda", "testuser", sampleCookies()))

	info, err := fs.Stat(root + "/foodpanda_testuser.json")
	require.NoError(t, err, "root directory is created and the record named <platform>_<user>.json")
	assert.Equal(t, 0o600, int(info.Mode().Perm()))

	got, ok, err := store.Load("foodpanda", "testuser")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Normalize(sampleCookies()), got)

	tmps, err := afero.Glob(fs, root+"/.session-*")
	require.NoError(t, err)
	assert.Empty(t, tmps, "no temp files are left behind")
}

func TestSaveOverwritesWholesale(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Save("foodpanda", "u", sampleCookies()))
	require.NoError(t, store.Save("foodpanda", "u", []schemas.Cookie{{Name: "only"}}))

	got, ok, err := store.Load("foodpanda", "u")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Name)
}

func TestSaveEmptySet(t *testing.T) {
	store, fs, _ := newTestStore(t)
	require.NoError(t, store.Save("foodpanda", "u", nil))

	data, err := afero.ReadFile(fs, root+"/foodpanda_u.json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	got, ok, err := store.Load("foodpanda", "u")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestLoadAbsent(t *testing.T) {
	store, _, _ := newTestStore(t)
	got, ok, err := store.Load("foodpanda", "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestLoadCorrupt(t *testing.T) {
	cases := map[string]string{
		"invalid json":    "invalid json",
		"truncated":       `[{"name":"a"`,
		"object not list": `{"name":"a"}`,
		"null":            `null`,
		"wrong types":     `[{"name":1}]`,
		"empty file":      ``,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			store, fs, _ := newTestStore(t)
			require.NoError(t, afero.WriteFile(fs, root+"/foodpanda_u.json", []byte(content), 0o600))

			got, ok, err := store.Load("foodpanda", "u")
			require.Error(t, err)
			assert.False(t, ok)
			assert.Nil(t, got, "never partially parsed")
			assert.True(t, errors.Is(err, ErrCorruptSessionData))

			var cerr *CorruptSessionDataError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, root+"/foodpanda_u.json", cerr.Path)
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	store, _, _ := newTestStore(t)
	for _, tc := range []struct{ platform, user string }{
		{"", "u"}, {"foodpanda", ""}, {"food/panda", "u"}, {"foodpanda", `..\x`}, {"foodpanda", ".."},
	} {
		err := store.Save(tc.platform, tc.user, sampleCookies())
		assert.ErrorIs(t, err, ErrInvalidKey, "%q/%q", tc.platform, tc.user)
		_, _, err = store.Load(tc.platform, tc.user)
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
}

func TestLoadExportedFile(t *testing.T) {
	exported := `[{"name":"session_id","value":"abc123","domain":".foodpanda.my","path":"/","secure":true,
		"httpOnly":true,"sameSite":"no_restriction","hostOnly":false,"storeId":"0","expirationDate":1767225600}]`

	t.Run("normalizes saves and returns", func(t *testing.T) {
		store, fs, _ := newTestStore(t)
		require.NoError(t, afero.WriteFile(fs, "/downloads/export.json", []byte(exported), 0o644))

		got, ok := store.LoadExportedFile("foodpanda", "testuser", "/downloads/export.json")
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.Equal(t, schemas.SameSiteNone, got[0].SameSite)
		assert.NotContains(t, got[0].Extra, "hostOnly")
		assert.Contains(t, got[0].Extra, "expirationDate")

		stored, ok, err := store.Load("foodpanda", "testuser")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, got, stored)
	})

	t.Run("missing file is logged and reported as none", func(t *testing.T) {
		store, _, logs := newTestStore(t)
		got, ok := store.LoadExportedFile("foodpanda", "testuser", "/nope.json")
		assert.False(t, ok)
		assert.Nil(t, got)

		entries := logs.FilterMessage("Failed to import exported cookie file.").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("unparsable file is logged and reported as none", func(t *testing.T) {
		store, fs, logs := newTestStore(t)
		require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("invalid json"), 0o644))

		_, ok := store.LoadExportedFile("foodpanda", "testuser", "/bad.json")
		assert.False(t, ok)
		assert.Equal(t, 1, logs.FilterMessage("Failed to import exported cookie file.").Len())

		_, stored, err := store.Load("foodpanda", "testuser")
		require.NoError(t, err)
		assert.False(t, stored, "nothing is written on failure")
	})
}

func TestImportFromDefaultExportLocation(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		store, _, logs := newTestStore(t)
		got, ok := store.ImportFromDefaultExportLocation("foodpanda", "u")
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.Zero(t, logs.Len())
	})

	t.Run("present is folded in and marked consumed", func(t *testing.T) {
		store, fs, _ := newTestStore(t)
		data, err := json.Marshal(sampleCookies())
		require.NoError(t, err)
		require.NoError(t, afero.WriteFile(fs, store.DefaultExportPath("foodpanda"), data, 0o644))

		got, ok := store.ImportFromDefaultExportLocation("foodpanda", "u")
		require.True(t, ok)
		assert.Equal(t, Normalize(sampleCookies()), got)

		exists, _ := afero.Exists(fs, root+"/foodpanda_exported.json")
		assert.False(t, exists)
		exists, _ = afero.Exists(fs, root+"/foodpanda_exported.json"+ConsumedSuffix)
		assert.True(t, exists)

		_, ok = store.ImportFromDefaultExportLocation("foodpanda", "u")
		assert.False(t, ok, "a consumed export is not imported twice")
	})

	t.Run("corrupt export is left in place", func(t *testing.T) {
		store, fs, _ := newTestStore(t)
		require.NoError(t, afero.WriteFile(fs, store.DefaultExportPath("foodpanda"), []byte("{"), 0o644))

		_, ok := store.ImportFromDefaultExportLocation("foodpanda", "u")
		assert.False(t, ok)
		exists, _ := afero.Exists(fs, store.DefaultExportPath("foodpanda"))
		assert.True(t, exists)
	})
}

func TestSealedValues(t *testing.T) {
	g, err := secrets.NewGCM(bytes.Repeat([]byte{7}, secrets.KeySize))
	require.NoError(t, err)

	store, fs, _ := newTestStore(t, WithCipher(g))
	require.NoError(t, store.Save("foodpanda", "u", sampleCookies()))

	raw, err := afero.ReadFile(fs, root+"/foodpanda_u.json")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abc123")
	assert.Contains(t, string(raw), secrets.SealedPrefix)
	assert.Contains(t, string(raw), "session_id", "names stay readable")

	got, ok, err := store.Load("foodpanda", "u")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", got[0].Value)

	t.Run("sealed record without key is corrupt", func(t *testing.T) {
		plain := New(fs, root, zap.NewNop())
		_, _, err := plain.Load("foodpanda", "u")
		assert.ErrorIs(t, err, ErrCorruptSessionData)
	})

	t.Run("plaintext record is still readable with a key", func(t *testing.T) {
		plain := New(fs, root, zap.NewNop())
		require.NoError(t, plain.Save("foodpanda", "legacy", sampleCookies()))
		got, ok, err := store.Load("foodpanda", "legacy")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "abc123", got[0].Value)
	})
}
