package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/modelresolver/pkg/model"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

type elementSummary struct {
	Path string            `json:"path"`
	Kind model.ElementKind `json:"kind"`
}

type modelSummary struct {
	Elements []elementSummary `json:"elements"`
	Count    int              `json:"count"`
}

// pathLister is implemented by compiled models that can enumerate their
// elements.
type pathLister interface {
	Paths() []string
}

func summarize(compiled model.Compiled) modelSummary {
	var paths []string
	if pl, ok := compiled.(pathLister); ok {
		paths = pl.Paths()
	}
	sort.Strings(paths)

	s := modelSummary{Count: compiled.Len(), Elements: make([]elementSummary, 0, len(paths))}
	for _, p := range paths {
		el, _ := compiled.Lookup(p)
		s.Elements = append(s.Elements, elementSummary{Path: p, Kind: el.Kind})
	}
	return s
}

func writeSummary(w io.Writer, s modelSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND")
	for _, e := range s.Elements {
		fmt.Fprintf(tw, "%s\t%s\n", e.Path, e.Kind)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d elements\n", s.Count)
	return err
}
