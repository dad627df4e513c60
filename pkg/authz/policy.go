package authz

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

// Query is the document every policy set must define.
const Query = "data.modelresolver.authz"

//go:embed policies/*.rego
var builtinFS embed.FS

// source is one Rego module.
type source struct {
	name string
	text string
}

// policySet is an immutable compiled policy generation.
type policySet struct {
	query    rego.PreparedEvalQuery
	modules  []string
	loadedAt time.Time
}

// builtinSources returns the embedded default policy.
func builtinSources() ([]source, error) {
	var sources []source
	err := fs.WalkDir(builtinFS, "policies", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		sources = append(sources, source{name: "builtin/" + filepath.Base(path), text: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in policies: %w", err)
	}
	return sources, nil
}

// dirSources reads every .rego file under dir, sorted by path.
func dirSources(dir string) ([]source, error) {
	var sources []source
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		sources = append(sources, source{name: path, text: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk policy directory: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no .rego files in policy directory %s", dir)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].name < sources[j].name })
	return sources, nil
}

// compile parses and prepares the sources as one policy set.
func compile(ctx context.Context, sources []source) (*policySet, error) {
	opts := []func(*rego.Rego){rego.Query(Query)}
	names := make([]string, 0, len(sources))

	for _, src := range sources {
		if _, err := ast.ParseModule(src.name, src.text); err != nil {
			return nil, fmt.Errorf("failed to parse policy %s: %w", src.name, err)
		}
		opts = append(opts, rego.Module(src.name, src.text))
		names = append(names, src.name)
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}

	return &policySet{
		query:    query,
		modules:  names,
		loadedAt: time.Now(),
	}, nil
}

// decision is the evaluated outcome of a policy set.
type decision struct {
	allow   bool
	reasons []string
}

func (p *policySet) eval(ctx context.Context, input map[string]interface{}) (decision, error) {
	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return decision{}, fmt.Errorf("policy evaluation error: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision{}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return decision{}, nil
	}

	var d decision
	d.allow, _ = doc["allow"].(bool)
	if deny, ok := doc["deny"].([]interface{}); ok {
		for _, r := range deny {
			d.reasons = append(d.reasons, fmt.Sprintf("%v", r))
		}
		sort.Strings(d.reasons)
	}
	return d, nil
}
