package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/fnhost/internal/shell/api"
	"github.com/artpar/fnhost/internal/shell/store"
)

const validFunctionYAML = `name: hello-world
runtime: nodejs18.x
memory: 256
inlineCode: |
  exports.handler = async (event) => ({ greeting: "hello " + event.name });
inputSchema:
  type: object
  required: [name]
`

func newTestAPI(t *testing.T, opts ...api.Option) *httptest.Server {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := httptest.NewServer(api.NewHandler(s, logger, opts...).Routes())
	t.Cleanup(server.Close)
	return server
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(args ...string) (int, string) {
	var out bytes.Buffer
	code := Run(args, Dependencies{Out: &out})
	return code, out.String()
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	code, out := run()

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "fnctl validate -f function.yaml")
}

func TestRun_Version(t *testing.T) {
	code, out := run("version")

	assert.Equal(t, 0, code)
	assert.Equal(t, "fnctl dev\n", out)
}

func TestRun_UnknownCommand(t *testing.T) {
	code, out := run("explode")

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "✗")
}

func TestValidate(t *testing.T) {
	t.Run("valid yaml is normalized", func(t *testing.T) {
		code, out := run("validate", "-f", writeTemp(t, "fn.yaml", validFunctionYAML))

		assert.Equal(t, 0, code)
		assert.Contains(t, out, "is valid")
		assert.Contains(t, out, "handler: index.handler")
		assert.Contains(t, out, "timeout: 30")
		assert.Contains(t, out, "sourceType: inline")
		assert.Contains(t, out, `"required":["name"]`)
	})

	t.Run("json is accepted", func(t *testing.T) {
		path := writeTemp(t, "fn.json", `{"name":"json-fn","runtime":"nodejs18.x","timeout":5,"inlineCode":"exports.handler = () => 1;"}`)
		code, out := run("validate", "-f", path)

		assert.Equal(t, 0, code)
		assert.Contains(t, out, "name: json-fn")
		assert.Contains(t, out, "timeout: 5")
	})

	t.Run("field errors are listed in order", func(t *testing.T) {
		path := writeTemp(t, "bad.yaml", "name: x\nruntime: cobol\nmemory: 100\n")
		code, out := run("validate", "-f", path)

		assert.Equal(t, 1, code)
		assert.Contains(t, out, "field(s) invalid")
		assert.Less(t, bytes.Index([]byte(out), []byte("  memory:")), bytes.Index([]byte(out), []byte("  name:")))
		assert.Contains(t, out, "  runtime:")
		assert.Contains(t, out, "not supported by this installation")
	})

	t.Run("missing file", func(t *testing.T) {
		code, out := run("validate", "-f", filepath.Join(t.TempDir(), "missing.yaml"))

		assert.Equal(t, 1, code)
		assert.Contains(t, out, "read ")
	})

	t.Run("not a mapping", func(t *testing.T) {
		code, _ := run("validate", "-f", writeTemp(t, "list.yaml", "- a\n- b\n"))
		assert.Equal(t, 1, code)
	})
}

func TestSubmit(t *testing.T) {
	server := newTestAPI(t)
	path := writeTemp(t, "fn.yaml", validFunctionYAML)

	t.Run("draft by default", func(t *testing.T) {
		code, out := run("--url", server.URL, "submit", "-f", path)

		assert.Equal(t, 0, code, out)
		assert.Contains(t, out, "saved as draft")
		assert.Contains(t, out, "status: draft")
	})

	t.Run("deploy", func(t *testing.T) {
		code, out := run("--url", server.URL, "submit", "-f", path, "--intent", "deploy")

		assert.Equal(t, 0, code, out)
		assert.Contains(t, out, "submitted for deployment")
		assert.Contains(t, out, "status: deploying")
	})

	t.Run("update existing", func(t *testing.T) {
		code, out := run("--url", server.URL, "submit", "-f", path, "--id", "fn-123")

		assert.Equal(t, 0, code, out)
		assert.Contains(t, out, "(fn-123)")
	})

	t.Run("update missing", func(t *testing.T) {
		code, out := run("--url", server.URL, "submit", "-f", path, "--id", "fn-missing")

		assert.Equal(t, 1, code)
		assert.Contains(t, out, "function not found")
	})

	t.Run("invalid locally", func(t *testing.T) {
		bad := writeTemp(t, "bad.yaml", "name: x\n")
		code, out := run("--url", server.URL, "submit", "-f", bad)

		assert.Equal(t, 1, code)
		assert.Contains(t, out, "  name:")
	})

	t.Run("github deploy is refused", func(t *testing.T) {
		gh := writeTemp(t, "gh.yaml", "name: from-repo\nsourceType: github\nruntime: nodejs18.x\nrepoUrl: https://github.com/acme/fn\n")
		code, out := run("--url", server.URL, "submit", "-f", gh, "--intent", "deploy")

		assert.Equal(t, 1, code)
		assert.Contains(t, out, "deployment unsupported")
	})

	t.Run("unknown intent is rejected by the parser", func(t *testing.T) {
		code, _ := run("--url", server.URL, "submit", "-f", path, "--intent", "publish")
		assert.Equal(t, 1, code)
	})
}

func TestSubmit_URLFromEnvironment(t *testing.T) {
	server := newTestAPI(t, api.WithAuthToken("s3cret"))
	t.Setenv(EnvURL, server.URL)
	path := writeTemp(t, "fn.yaml", validFunctionYAML)

	code, out := run("submit", "-f", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "401")

	t.Setenv(EnvToken, "s3cret")
	code, out = run("submit", "-f", path)
	assert.Equal(t, 0, code, out)
}

func TestSubmit_EnvFile(t *testing.T) {
	server := newTestAPI(t)
	t.Setenv(EnvURL, "")
	require.NoError(t, os.Unsetenv(EnvURL))
	envFile := writeTemp(t, ".env", "FNHOST_URL="+server.URL+"\n")

	code, out := run("--env-file", envFile, "submit", "-f", writeTemp(t, "fn.yaml", validFunctionYAML))
	assert.Equal(t, 0, code, out)
}

func TestListGetDelete(t *testing.T) {
	server := newTestAPI(t)

	code, out := run("--url", server.URL, "list")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "fn-123")
	assert.Contains(t, out, "fn-456")
	assert.Contains(t, out, "page 1 of 1 (2 total)")

	code, out = run("--url", server.URL, "list", "--search", "another")
	require.Equal(t, 0, code, out)
	assert.NotContains(t, out, "fn-123")

	code, out = run("--url", server.URL, "get", "fn-123")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "id: fn-123")
	assert.Contains(t, out, "name: MyTestFunction")

	code, out = run("--url", server.URL, "delete", "fn-123")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "deleted fn-123")

	code, out = run("--url", server.URL, "get", "fn-123")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "function not found")
}

func TestTestInput(t *testing.T) {
	server := newTestAPI(t)

	code, out := run("--url", server.URL, "submit", "-f", writeTemp(t, "fn.yaml", validFunctionYAML))
	require.Equal(t, 0, code, out)
	start := bytes.IndexByte([]byte(out), '(')
	end := bytes.IndexByte([]byte(out), ')')
	require.True(t, start >= 0 && end > start, out)
	id := out[start+1 : end]

	code, out = run("--url", server.URL, "test-input", id, "-f", writeTemp(t, "ok.json", `{"name":"World"}`))
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "matches input schema")

	code, out = run("--url", server.URL, "test-input", id, "-f", writeTemp(t, "bad.json", `{}`))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "does not match")

	code, out = run("--url", server.URL, "test-input", id, "-f", writeTemp(t, "junk.json", `{nope`))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "payload must be valid JSON")
}

func TestLoadCandidate_SchemaAsString(t *testing.T) {
	path := writeTemp(t, "fn.yaml", "name: s\ninputSchema: '{\"type\":\"string\"}'\n")

	c, err := loadCandidate(path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"string"}`, c["inputSchema"])
}
