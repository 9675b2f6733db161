package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/gsa"
	"github.com/appuploader/grandslam/gsa/gsatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func writeConfig(t *testing.T, srv *gsatest.Server, kind string) string {
	dir := t.TempDir()
	path := dir
	if kind == "bolt" {
		path = filepath.Join(dir, "accounts.db")
	}
	body := fmt.Sprintf(`
[GSA]
  Host = %q
[Anisette]
  URL = %q
[Storage]
  Kind = %q
  Path = %q
[Logging]
  Level = "warn"
`, srv.URL, srv.URL, kind, path)
	f := filepath.Join(dir, "gsalogin.toml")
	require.NoError(t, os.WriteFile(f, []byte(body), 0600))
	return f
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginThenToken(t *testing.T) {
	for _, kind := range []string{"file", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			srv := gsatest.New(t, gsatest.Config{
				Username: "dev@example.com", Password: "pw",
				Protocol: gsa.ProtocolS2KFO, SecondFactor: gsa.AuthSecondary,
			})
			cfg := writeConfig(t, srv, kind)

			out, err := run(t, "pw\n"+gsatest.Code+"\n", "-c", cfg, "-a", "dev@example.com", "login")
			require.NoError(t, err, out)
			assert.Contains(t, out, "sms security code")
			assert.Contains(t, out, "login succeeded")

			out, err = run(t, "", "-c", cfg, "-a", "DEV@example.com", "token")
			require.NoError(t, err, out)
			assert.Contains(t, out, gsatest.TokenFor(gsa.AppIDXcode, 1))
			assert.Equal(t, int32(1), srv.TokenRequests.Load())

			out, err = run(t, "", "-c", cfg, "-a", "dev@example.com", "token")
			require.NoError(t, err, out)
			assert.Equal(t, int32(1), srv.TokenRequests.Load())
		})
	}
}

func TestTeams(t *testing.T) {
	srv := gsatest.New(t, gsatest.Config{Username: "dev@example.com", Password: "pw"})
	cfg := writeConfig(t, srv, "file")
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, _ := plist.Marshal(map[string]any{
			"resultCode": 0,
			"teams":      []any{map[string]any{"teamId": "T1", "name": "Personal", "type": "Individual"}},
		}, plist.XMLFormat)
		w.Write(out)
	}))
	defer portal.Close()

	_, err := run(t, "pw\n", "-c", cfg, "-a", "dev@example.com", "login")
	require.NoError(t, err)
	out, err := run(t, "", "-c", cfg, "-a", "dev@example.com", "teams", "--portal", portal.URL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "T1\tPersonal\tIndividual")
}

func TestRestoreReusesHeldAccount(t *testing.T) {
	srv := gsatest.New(t, gsatest.Config{Username: "dev@example.com", Password: "pw"})
	cfg := writeConfig(t, srv, "file")
	_, err := run(t, "pw\n", "-c", cfg, "-a", "dev@example.com", "login")
	require.NoError(t, err)

	g := &globals{configFile: cfg, email: "dev@example.com", accounts: account.NewStore()}
	require.NoError(t, g.setup())
	defer g.store.Close()
	first, err := g.restore()
	require.NoError(t, err)
	second, err := g.restore()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"dev@example.com"}, g.accounts.Emails())
}

func TestTokenWithoutLogin(t *testing.T) {
	srv := gsatest.New(t, gsatest.Config{Username: "dev@example.com", Password: "pw"})
	_, err := run(t, "", "-c", writeConfig(t, srv, "file"), "-a", "dev@example.com", "token")
	assert.ErrorContains(t, err, "run login first")
}

func TestWrongPassword(t *testing.T) {
	srv := gsatest.New(t, gsatest.Config{Username: "dev@example.com", Password: "pw"})
	_, err := run(t, "nope\n", "-c", writeConfig(t, srv, "file"), "-a", "dev@example.com", "login")
	assert.Error(t, err)
}
