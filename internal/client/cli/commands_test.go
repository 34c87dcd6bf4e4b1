package cli

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/pantryclient/internal/client/config"
	"github.com/dmitrijs2005/pantryclient/internal/devserver"
)

type cliEnv struct {
	t       *testing.T
	baseURL string
	dir     string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	color.NoColor = true

	var dcfg devserver.Config
	dcfg.LoadDefaults()
	srv := httptest.NewServer(devserver.NewRouter(devserver.NewService(dcfg, nil), nil))
	t.Cleanup(srv.Close)

	return &cliEnv{t: t, baseURL: srv.URL, dir: t.TempDir()}
}

func (e *cliEnv) root(stdin string) *cobra.Command {
	var cfg config.Config
	cfg.LoadDefaults()
	cfg.DatabasePath = filepath.Join(e.dir, "pantry.db")
	cfg.KeyFile = filepath.Join(e.dir, "credential.key")
	cfg.LogLevel = "error"
	return NewRootCmd(&cfg, strings.NewReader(stdin))
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	root := e.root(stdin)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--base-url", e.baseURL, "--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_Version(t *testing.T) {
	e := newCLIEnv(t)
	root := e.root("")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Build version:")
}

func TestCLI_SessionFlow(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	out, err = e.run("", "register", "-e", "ann@example.com", "-n", "Ann", "-p", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Account created, you are signed in.")

	// the credential survives between invocations
	out, err = e.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in until")

	out, err = e.run("", "profile", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "ann@example.com"`)

	out, err = e.run("", "profile", "update", "--name", "Annie")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Annie"`)

	out, err = e.run("", "recipes", "generate", "egg", "leek")
	require.NoError(t, err)
	assert.Contains(t, out, "egg & leek skillet")

	out, err = e.run("", "get", "/recipes", "--strategy", "cache-first")
	require.NoError(t, err)
	assert.Contains(t, out, "egg salad")

	out, err = e.run("", "cache")
	require.NoError(t, err)
	assert.Contains(t, out, "entries:")

	out, err = e.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, err = e.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestCLI_LoginFailure(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run("", "register", "-e", "bob@example.com", "-n", "Bob", "-p", "secret1")
	require.NoError(t, err)

	out, err := e.run("", "login", "-e", "bob@example.com", "-p", "wrong")
	assert.Error(t, err)
	assert.Contains(t, out, "Login failed: invalid e-mail or password")
}

func TestCLI_PromptedLogin(t *testing.T) {
	withTerminal(t, false, nil)
	e := newCLIEnv(t)

	_, err := e.run("", "register", "-e", "cat@example.com", "-n", "Cat", "-p", "secret1")
	require.NoError(t, err)
	_, err = e.run("", "logout")
	require.NoError(t, err)

	out, err := e.run("cat@example.com\nsecret1\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Enter email")
	assert.Contains(t, out, "Enter password:")
	assert.Contains(t, out, "Login successful.")
}

func TestCLI_Shell(t *testing.T) {
	withTerminal(t, false, nil)
	e := newCLIEnv(t)

	_, err := e.run("", "register", "-e", "dee@example.com", "-n", "Dee", "-p", "secret1")
	require.NoError(t, err)

	script := strings.Join([]string{"status", "profile refresh", "generate", "tomato", "", "logout", "status", "exit"}, "\n") + "\n"
	out, err := e.run(script, "shell")
	require.NoError(t, err)

	assert.Contains(t, out, "pantry (signed in)>")
	assert.Contains(t, out, `"email": "dee@example.com"`)
	assert.Contains(t, out, "tomato skillet")
	assert.Contains(t, out, "Logged out.")
	assert.Contains(t, out, "pantry (signed out)>")
	assert.Contains(t, out, "Bye!")
}

func TestCLI_InvalidConfig(t *testing.T) {
	e := newCLIEnv(t)
	root := e.root("")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--base-url", "ftp://example.com", "status"})
	assert.Error(t, root.Execute())
}

func TestCLI_UnknownStrategy(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run("", "get", "/recipes", "--strategy", "sideways")
	assert.Error(t, err)
}
