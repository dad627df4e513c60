package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/stores"
)

// Importer writes model data into the archive.
type Importer struct {
	store    stores.Store
	validate *validator.Validate
}

// NewImporter creates an importer for store.
func NewImporter(store stores.Store) *Importer {
	return &Importer{store: store, validate: validator.New()}
}

// ImportOptions names the archived version.
type ImportOptions struct {
	Name    string
	Version string

	// Origin records where the document came from.
	Origin string

	// Overwrite replaces an existing version.
	Overwrite bool
}

// Decode reads a model document in YAML or JSON.
func Decode(r io.Reader) (*model.Data, error) {
	var data model.Data
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty model document")
		}
		return nil, fmt.Errorf("failed to decode model document: %w", err)
	}
	return &data, nil
}

// ImportDocument decodes r and archives it.
func (i *Importer) ImportDocument(ctx context.Context, r io.Reader, opts ImportOptions) (*stores.ArchivedVersion, error) {
	data, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return i.Import(ctx, data, opts)
}

// Import validates data and archives it as canonical JSON.
func (i *Importer) Import(ctx context.Context, data *model.Data, opts ImportOptions) (*stores.ArchivedVersion, error) {
	if data == nil {
		return nil, fmt.Errorf("no model data to archive")
	}
	if err := i.validate.Struct(data); err != nil {
		return nil, fmt.Errorf("invalid model document: %w", err)
	}

	doc, err := json.Marshal(model.Data{Elements: data.Elements})
	if err != nil {
		return nil, fmt.Errorf("failed to encode model document: %w", err)
	}

	origin := opts.Origin
	if origin == "" && data.Provenance != nil {
		origin = data.Provenance.Origin
	}

	v := &stores.ArchivedVersion{
		Name:         opts.Name,
		Version:      opts.Version,
		Document:     doc,
		ElementCount: data.Len(),
		Origin:       origin,
	}
	if err := i.store.Put(ctx, v, opts.Overwrite); err != nil {
		return nil, err
	}
	return v, nil
}
