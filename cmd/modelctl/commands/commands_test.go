package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/remote"
)

const tradesYAML = `
elements:
  - path: org::finos::Trade
    kind: Class
    properties:
      - name: side
        type: org::finos::Side
        multiplicity: "1"
      - name: legs
        type: org::finos::Leg
        multiplicity: "*"
  - path: org::finos::Leg
    kind: Class
    properties:
      - name: notional
        type: Float
        multiplicity: "1"
  - path: org::finos::Side
    kind: Enumeration
    values: [BUY, SELL]
`

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
telemetry:
  logging:
    level: error
archive:
  path: %s
%s`, filepath.Join(dir, "archive.db"), extra)

	path := filepath.Join(dir, "modelctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &env{dir: dir, config: path}
}

func (e *env) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestArchiveWorkflow(t *testing.T) {
	e := newEnv(t, "")
	file := e.file(t, "trades.yaml", tradesYAML)

	out, err := e.run(t, "archive", "import", file, "--to", "trades@1.0.0")
	require.NoError(t, err)
	assert.Contains(t, out, "archived trades@1.0.0 (3 elements, blake3 ")

	_, err = e.run(t, "archive", "import", file, "--to", "trades@1.0.0")
	require.Error(t, err)

	out, err = e.run(t, "archive", "list", "--json")
	require.NoError(t, err)
	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "trades", infos[0]["name"])
	assert.Equal(t, "file:"+file, infos[0]["origin"])

	t.Run("resolve", func(t *testing.T) {
		out, err := e.run(t, "resolve", "--archived", "trades@1.0.0", "--json")
		require.NoError(t, err)
		var summary modelSummary
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.Equal(t, 3, summary.Count)
		assert.Equal(t, []elementSummary{
			{Path: "org::finos::Leg", Kind: model.KindClass},
			{Path: "org::finos::Side", Kind: model.KindEnumeration},
			{Path: "org::finos::Trade", Kind: model.KindClass},
		}, summary.Elements)
	})

	t.Run("resolve table", func(t *testing.T) {
		out, err := e.run(t, "resolve", "--archived", "trades@1.0.0")
		require.NoError(t, err)
		assert.Contains(t, out, "PATH")
		assert.Contains(t, out, "org::finos::Trade")
		assert.Contains(t, out, "3 elements")
	})

	t.Run("data", func(t *testing.T) {
		out, err := e.run(t, "data", "--archived", "trades@1.0.0", "--json")
		require.NoError(t, err)
		var data model.Data
		require.NoError(t, json.Unmarshal([]byte(out), &data))
		assert.Equal(t, []string{"org::finos::Trade", "org::finos::Leg", "org::finos::Side"}, data.Paths())
	})

	t.Run("return type", func(t *testing.T) {
		out, err := e.run(t, "return-type", "--archived", "trades@1.0.0", "-p", "t=org::finos::Trade", "$t.legs.notional")
		require.NoError(t, err)
		assert.Equal(t, "Float[*]\n", out)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := e.run(t, "archive", "delete", "trades@1.0.0")
		require.NoError(t, err)

		_, err = e.run(t, "resolve", "--archived", "trades@1.0.0")
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrRemoteHard))
	})
}

func TestResolveCombinesSources(t *testing.T) {
	e := newEnv(t, "")
	data := e.file(t, "trades.yaml", tradesYAML)
	text := e.file(t, "extra.cue", `
"org::finos::Book": {
	properties: {
		trades: "org::finos::Trade[*]"
	}
}
`)

	out, err := e.run(t, "resolve", "--data", data, "--text", text, "--json")
	require.NoError(t, err)
	var summary modelSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 4, summary.Count)
}

func TestResolveReportsCompilationErrors(t *testing.T) {
	e := newEnv(t, "")
	text := e.file(t, "broken.cue", `
"org::finos::Trade": {
	properties: {
		book: "org::finos::Missing[1]"
	}
}
`)

	_, err := e.run(t, "resolve", "--text", text)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrCompilation))
}

func TestArchiveSaveFromDepot(t *testing.T) {
	entities, err := remote.EncodeEntities(model.NewData(
		model.Element{Path: "org::finos::Trade", Kind: model.KindClass},
	))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/org.finos/trades/versions/1.2.0/entities", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(entities)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newEnv(t, fmt.Sprintf("depot:\n  enabled: true\n  base_url: %s\n", srv.URL))

	out, err := e.run(t, "archive", "save", "--version", "org.finos:trades:1.2.0", "--to", "trades@1.2.0")
	require.NoError(t, err)
	assert.Contains(t, out, "archived trades@1.2.0 (1 elements")

	srv.Close()
	out, err = e.run(t, "resolve", "--archived", "trades@1.2.0", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "org::finos::Trade")
}

func TestPolicyCommands(t *testing.T) {
	e := newEnv(t, "")

	out, err := e.run(t, "policy", "list")
	require.NoError(t, err)
	assert.Equal(t, "builtin/default.rego\n", out)

	out, err = e.run(t, "policy", "check", "--principal", "alice", "--workspace", "PROD-1/ws")
	require.NoError(t, err)
	assert.Equal(t, "allowed: pointer(PROD-1/workspace/ws)\n", out)

	_, err = e.run(t, "policy", "check", "--principal", "", "--workspace", "PROD-1/ws")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrUnauthorized))

	_, err = e.run(t, "policy", "check", "--text", e.file(t, "m.cue", "{}"))
	assert.Error(t, err)
}

func TestContextErrors(t *testing.T) {
	e := newEnv(t, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"resolve"}, "no model context given"},
		{"bad version", []string{"resolve", "--version", "org.finos:trades"}, "want group:artifact:version"},
		{"bad workspace", []string{"resolve", "--workspace", "PROD-1"}, "want project/workspace"},
		{"bad archived", []string{"resolve", "--archived", "trades"}, "want name@version"},
		{"bad param", []string{"return-type", "--text", "x", "-p", "t", "$t"}, "want name=Type"},
		{"no loader", []string{"resolve", "--version", "org.finos:trades:1.0.0"}, "LOADER_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
