package aggregation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefinitionRepository defines the interface for loading aggregation definitions.
type DefinitionRepository interface {
	// Get returns the definition with the given name, or an error if not found.
	Get(ctx context.Context, name string) (*Definition, error)

	// List returns all loaded definitions, optionally filtered by source event type.
	List(ctx context.Context, sourceEvent string) ([]Definition, error)

	// All returns every definition ordered by name.
	All() []Definition
}

// FileSystemDefinitionRepository loads definitions from *.yaml files in a directory.
// Each file contains exactly one definition at the top level. Definitions are loaded
// once at startup and cached in memory.
type FileSystemDefinitionRepository struct {
	dir  string
	defs map[string]Definition // keyed by Name
}

// NewFileSystemDefinitionRepository creates a new repository and eagerly loads all
// definitions from dir. Returns an error if any file is malformed or invalid.
func NewFileSystemDefinitionRepository(dir string) (*FileSystemDefinitionRepository, error) {
	repo := &FileSystemDefinitionRepository{
		dir:  dir,
		defs: make(map[string]Definition),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewStaticDefinitionRepository wraps already-compiled definitions.
func NewStaticDefinitionRepository(defs ...Definition) (*FileSystemDefinitionRepository, error) {
	repo := &FileSystemDefinitionRepository{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if _, exists := repo.defs[def.Name]; exists {
			return nil, fmt.Errorf("aggregation %q: duplicate definition name", def.Name)
		}
		repo.defs[def.Name] = def
	}
	return repo, nil
}

func (r *FileSystemDefinitionRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no definitions directory: zero aggregations configured
	}
	if err != nil {
		return fmt.Errorf("aggregation definition dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("aggregation definition path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading aggregation definition dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading definition file %s: %w", path, err)
		}

		var raw RawDefinition
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing definition file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue // skip empty / comment-only files
		}

		def, err := Compile(raw)
		if err != nil {
			return fmt.Errorf("definition file %s: %w", path, err)
		}
		def.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))

		if _, exists := r.defs[def.Name]; exists {
			return fmt.Errorf("aggregation %q: duplicate definition name (check multiple YAML files)", def.Name)
		}
		r.defs[def.Name] = def
	}
	return nil
}

// Get returns the definition with the given name, or an error if not found.
func (r *FileSystemDefinitionRepository) Get(_ context.Context, name string) (*Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("aggregation %q not found", name)
	}
	return &def, nil
}

// List returns all loaded definitions, optionally filtered by source event type.
func (r *FileSystemDefinitionRepository) List(_ context.Context, sourceEvent string) ([]Definition, error) {
	var out []Definition
	for _, def := range r.All() {
		if sourceEvent != "" && def.SourceEvent != sourceEvent {
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

// All returns every definition ordered by name.
func (r *FileSystemDefinitionRepository) All() []Definition {
	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
