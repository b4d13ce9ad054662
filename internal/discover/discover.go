// Package discover locates dataset input files, loads the candidate list and
// applies lineage exclusion patterns.
package discover

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/cladeguess/internal/model"
	"github.com/phobologic/cladeguess/internal/taxonomy"
)

// ErrUnknownDataset is returned for a dataset name outside Datasets.
var ErrUnknownDataset = errors.New("unknown dataset")

// All expands to every dataset.
const All = "all"

// Datasets lists the fixed dataset names in processing order.
var Datasets = []string{"metaflora", "metazooa"}

// Dataset holds the resolved input paths of one dataset.
type Dataset struct {
	Name       string
	Outline    string // phylo-<name>.txt
	Candidates string // game-<name>.json
	Ignore     string // exclusion patterns; "" when absent
}

// Inputs returns every existing input path of d.
func (d Dataset) Inputs() []string {
	in := []string{d.Outline, d.Candidates}
	if d.Ignore != "" {
		in = append(in, d.Ignore)
	}
	return in
}

// Expand validates dataset names, expands "all" and drops repeats while
// keeping first-seen order.
func Expand(names []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(n string) {
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, n := range names {
		if n == All {
			for _, d := range Datasets {
				add(d)
			}
			continue
		}
		if !Known(n) {
			return nil, fmt.Errorf("%w %q (valid: %v or %q)", ErrUnknownDataset, n, Datasets, All)
		}
		add(n)
	}
	return out, nil
}

// Known reports whether name is one of Datasets.
func Known(name string) bool {
	for _, d := range Datasets {
		if d == name {
			return true
		}
	}
	return false
}

// Resolve finds the input files of dataset name under inputDir. ignoreFile
// is resolved against inputDir unless absolute; a missing ignore file is
// not an error.
func Resolve(inputDir, name, ignoreFile string) (Dataset, error) {
	if !Known(name) {
		return Dataset{}, fmt.Errorf("%w %q", ErrUnknownDataset, name)
	}
	d := Dataset{
		Name:       name,
		Outline:    filepath.Join(inputDir, "phylo-"+name+".txt"),
		Candidates: filepath.Join(inputDir, "game-"+name+".json"),
	}
	for _, p := range []string{d.Outline, d.Candidates} {
		info, err := os.Stat(p)
		if err != nil {
			return Dataset{}, fmt.Errorf("dataset %s: %w", name, err)
		}
		if info.IsDir() {
			return Dataset{}, fmt.Errorf("dataset %s: %s is a directory", name, p)
		}
	}

	if ignoreFile != "" {
		if !filepath.IsAbs(ignoreFile) {
			ignoreFile = filepath.Join(inputDir, ignoreFile)
		}
		if info, err := os.Stat(ignoreFile); err == nil && !info.IsDir() {
			d.Ignore = ignoreFile
		}
	}
	return d, nil
}

// LoadCandidates reads a JSON array of {"name", "scientific"} records.
func LoadCandidates(path string) ([]model.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cands []model.Candidate
	if err := json.Unmarshal(data, &cands); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for i, c := range cands {
		if c.Label == "" || c.Scientific == "" {
			return nil, fmt.Errorf("%s: record %d: name and scientific are required", path, i)
		}
	}
	return cands, nil
}

// LoadIgnore compiles the exclusion patterns at path. It returns nil for an
// empty path.
func LoadIgnore(path string) (*ignore.GitIgnore, error) {
	if path == "" {
		return nil, nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	return gi, nil
}

// Exclude splits candidates into those kept and those whose lineage
// (root-first path of scientific names) matches gi. Candidates whose
// scientific name is not in t are kept so binding reports them.
func Exclude(t *taxonomy.Tree, cands []model.Candidate, gi *ignore.GitIgnore) (kept, dropped []model.Candidate) {
	if gi == nil {
		return cands, nil
	}
	for _, c := range cands {
		n, ok := t.Lookup(c.Scientific)
		if ok && gi.MatchesPath(t.Lineage(n)) {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}
