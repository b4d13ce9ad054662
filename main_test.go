package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/cladeguess/internal/config"
	"github.com/phobologic/cladeguess/internal/decision"
	"github.com/phobologic/cladeguess/internal/discover"
	"github.com/phobologic/cladeguess/internal/parse"
	"github.com/phobologic/cladeguess/internal/taxonomy"
)

const zooaOutline = `A
+-B
| \-Felis catus
\-C
  +-Canis familiaris
  \-Canis lupus
`

const zooaGame = `[
  {"name": "cat", "scientific": "Felis catus"},
  {"name": "dog", "scientific": "Canis familiaris"},
  {"name": "wolf", "scientific": "Canis lupus"}
]`

const floraOutline = `Plantae
+-Pinus
\-Quercus
  +-Quercus robur
  \-Quercus alba
`

const floraGame = `[
  {"name": "pine", "scientific": "Pinus"},
  {"name": "oak", "scientific": "Quercus robur"},
  {"name": "white oak", "scientific": "Quercus alba"}
]`

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// createSampleInput writes both datasets with their inputs backdated so
// outputs written afterwards are strictly newer.
func createSampleInput(t *testing.T) (in, out string) {
	t.Helper()
	dir := t.TempDir()
	in = filepath.Join(dir, "input")
	out = filepath.Join(dir, "output")
	writeTestFile(t, in, "phylo-metazooa.txt", zooaOutline)
	writeTestFile(t, in, "game-metazooa.json", zooaGame)
	writeTestFile(t, in, "phylo-metaflora.txt", floraOutline)
	writeTestFile(t, in, "game-metaflora.json", floraGame)
	backdate(t, in)
	return in, out
}

func backdate(t *testing.T, dir string) {
	t.Helper()
	old := time.Now().Add(-time.Hour)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := os.Chtimes(filepath.Join(dir, e.Name()), old, old); err != nil {
			t.Fatal(err)
		}
	}
}

// baseArgs points run at the fixture directories and a config file that
// does not exist, so only defaults and flags apply.
func baseArgs(t *testing.T, in, out string) []string {
	t.Helper()
	return []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "-i", in, "-o", out}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	if err := run(append(baseArgs(t, in, out), "metazooa"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	if got, want := stdout.String(), "metazooa: 3 species, max 2, avg 1.667\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}

	wantDecisions := strings.Join([]string{
		"* A: dog (max=2, avg=1.667, cnt=3)",
		"  * A: cat (max=1, avg=1, cnt=1)",
		"  * C: wolf (max=1, avg=1, cnt=1)",
		"",
	}, "\n")
	if diff := cmp.Diff(wantDecisions, readFile(t, filepath.Join(out, "decision-metazooa.txt"))); diff != "" {
		t.Errorf("decision file mismatch (-want +got):\n%s", diff)
	}

	wantSpecies := strings.Join([]string{
		"* A: (3 species)",
		"  * Felis catus: cat",
		"  * C: (2 species)",
		"    * Canis familiaris: dog",
		"    * Canis lupus: wolf",
		"",
	}, "\n")
	if diff := cmp.Diff(wantSpecies, readFile(t, filepath.Join(out, "species-metazooa.txt"))); diff != "" {
		t.Errorf("species file mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(out, "species-metaflora.txt")); err == nil {
		t.Error("metaflora should not be processed")
	}
	if _, err := os.Stat(filepath.Join(out, "outline-metazooa.txt")); err == nil {
		t.Error("outline should only be written with --outline")
	}
}

func TestRunAllInOrder(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	if err := run(append(baseArgs(t, in, out), "metazooa", "all"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	want := "metazooa: 3 species, max 2, avg 1.667\n" +
		"metaflora: 3 species, max 2, avg 1.667\n"
	if got := stdout.String(); got != want {
		t.Errorf("stdout =\n%s\nwant\n%s", got, want)
	}
	for _, name := range []string{"species-metaflora.txt", "decision-metaflora.txt", "species-metazooa.txt", "decision-metazooa.txt"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if !strings.HasPrefix(readFile(t, filepath.Join(out, "decision-metaflora.txt")), "* Plantae: oak (max=2") {
		t.Error("metaflora should guess oak first")
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "cladeguess ") {
		t.Errorf("unexpected version output: %q", stdout.String())
	}

	stdout.Reset()
	if err := run([]string{"-V"}, &stdout, &stderr); err != nil {
		t.Fatalf("run -V: %v", err)
	}
	if stdout.String() != "cladeguess dev\n" {
		t.Errorf("unexpected -V output: %q", stdout.String())
	}
}

func TestRunUnknownDataset(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	err := run(append(baseArgs(t, in, out), "metafauna"), &stdout, &stderr)
	if !errors.Is(err, discover.ErrUnknownDataset) {
		t.Fatalf("error = %v, want ErrUnknownDataset", err)
	}
}

func TestRunUnknownStrategy(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	err := run(append(baseArgs(t, in, out), "-s", "random", "metazooa"), &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "unknown strategy") {
		t.Fatalf("error = %v, want unknown strategy", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "phylo-metazooa.txt", zooaOutline)

	var stdout, stderr bytes.Buffer
	err := run(append(baseArgs(t, dir, filepath.Join(dir, "out")), "metazooa"), &stdout, &stderr)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want ErrNotExist", err)
	}
}

func TestRunCache(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	args := append(baseArgs(t, in, out), "metazooa")

	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("first run: %v", err)
	}

	stdout.Reset()
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := stdout.String(); got != "metazooa: up to date\n" {
		t.Errorf("second run stdout = %q, want up to date", got)
	}

	// A different strategy invalidates the outputs, and is then cached itself.
	greedy := append(baseArgs(t, in, out), "-s", "greedy", "metazooa")
	stdout.Reset()
	if err := run(greedy, &stdout, &stderr); err != nil {
		t.Fatalf("greedy run: %v", err)
	}
	if !strings.Contains(stdout.String(), "3 species") {
		t.Errorf("strategy change should rebuild, got %q", stdout.String())
	}
	stdout.Reset()
	if err := run(greedy, &stdout, &stderr); err != nil {
		t.Fatalf("second greedy run: %v", err)
	}
	if got := stdout.String(); got != "metazooa: up to date\n" {
		t.Errorf("repeated greedy run stdout = %q, want up to date", got)
	}

	stdout.Reset()
	if err := run(append(args, "--force"), &stdout, &stderr); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if !strings.Contains(stdout.String(), "3 species") {
		t.Errorf("--force should rebuild, got %q", stdout.String())
	}

	// A newer input invalidates the outputs.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(in, "game-metazooa.json"), future, future); err != nil {
		t.Fatal(err)
	}
	stdout.Reset()
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("stale run: %v", err)
	}
	if !strings.Contains(stdout.String(), "3 species") {
		t.Errorf("stale outputs should rebuild, got %q", stdout.String())
	}
}

func TestRunCacheTracksSettings(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	writeTestFile(t, in, "no-wolves", "Canis lupus\n")
	backdate(t, in)
	decisionPath := filepath.Join(out, "decision-metazooa.toon")

	steps := []struct {
		name  string
		flags []string
		want  string
	}{
		{"first run", []string{"-f", "toon"}, "metazooa: 3 species, max 2, avg 1.667\n"},
		{"same settings", []string{"-f", "toon"}, "metazooa: up to date\n"},
		{"strategy flag", []string{"-f", "toon", "-s", "greedy"}, "metazooa: 3 species, max 2, avg 1.667\n"},
		{"ignore file", []string{"-f", "toon", "-s", "greedy", "--ignore", "no-wolves"}, "metazooa: 2 species, max 2, avg 1.5\n"},
		{"outline flag", []string{"-f", "toon", "-s", "greedy", "--ignore", "no-wolves", "--outline"}, "metazooa: 2 species, max 2, avg 1.5\n"},
		{"unchanged again", []string{"-f", "toon", "-s", "greedy", "--ignore", "no-wolves", "--outline"}, "metazooa: up to date\n"},
	}
	for _, st := range steps {
		args := append(baseArgs(t, in, out), st.flags...)
		var stdout, stderr bytes.Buffer
		if err := run(append(args, "metazooa"), &stdout, &stderr); err != nil {
			t.Fatalf("%s: %v\nstderr: %s", st.name, err, stderr.String())
		}
		if got := stdout.String(); got != st.want {
			t.Errorf("%s: stdout = %q, want %q", st.name, got, st.want)
		}
		if st.name == "strategy flag" {
			if got := readFile(t, decisionPath); !strings.Contains(got, "strategy: greedy\n") {
				t.Errorf("decision report not rebuilt for greedy:\n%s", got)
			}
		}
	}
}

func TestRunTOON(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	if err := run(append(baseArgs(t, in, out), "-f", "toon", "metazooa"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	got := readFile(t, filepath.Join(out, "decision-metazooa.toon"))
	for _, want := range []string{
		"dataset: metazooa\n",
		"strategy: ordered\n",
		"species: 3\n",
		"decisions[3]{depth,subject,guess,max,avg,cnt}:",
		"species[3]{label,scientific,guesses}:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("toon output missing %q:\n%s", want, got)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "decision-metazooa.txt")); err == nil {
		t.Error("text report should not be written in toon format")
	}
}

func TestRunOutline(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	if err := run(append(baseArgs(t, in, out), "--outline", "metazooa"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	f, err := os.Open(filepath.Join(out, "outline-metazooa.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tree, err := parse.Outline(f)
	if err != nil {
		t.Fatalf("exported outline does not parse: %v", err)
	}
	// B has a single species below it and is collapsed away.
	if _, ok := tree.Lookup("B"); ok {
		t.Error("single-child chain should be collapsed")
	}
	if _, ok := tree.Lookup("Canis lupus"); !ok {
		t.Error("exported outline lost Canis lupus")
	}
}

func TestRunExclusion(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	writeTestFile(t, in, ".cladeignore", "# wild animals\nCanis lupus\n")
	backdate(t, in)

	var stdout, stderr bytes.Buffer
	if err := run(append(baseArgs(t, in, out), "metazooa"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if got := stdout.String(); got != "metazooa: 2 species, max 2, avg 1.5\n" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(stderr.String(), "excluded candidate") || !strings.Contains(stderr.String(), "wolf") {
		t.Errorf("exclusion not logged:\n%s", stderr.String())
	}
	if strings.Contains(readFile(t, filepath.Join(out, "species-metazooa.txt")), "wolf") {
		t.Error("excluded species still listed")
	}
}

func TestRunExcludeEverything(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	writeTestFile(t, in, "skip-all", "A\n")

	var stdout, stderr bytes.Buffer
	err := run(append(baseArgs(t, in, out), "--ignore", "skip-all", "metazooa"), &stdout, &stderr)
	if !errors.Is(err, decision.ErrNoCandidates) {
		t.Fatalf("error = %v, want ErrNoCandidates", err)
	}
}

func TestRunBadOutlineWritesNothing(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	writeTestFile(t, in, "phylo-metazooa.txt", "A\n+-B\n\\-B\n")

	var stdout, stderr bytes.Buffer
	err := run(append(baseArgs(t, in, out), "metazooa"), &stdout, &stderr)
	if !errors.Is(err, taxonomy.ErrDuplicate) {
		t.Fatalf("error = %v, want ErrDuplicate", err)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("output directory should be empty, has %d entries", len(entries))
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should be printed on failure, got %q", stdout.String())
	}
}

func TestRunUnknownScientificName(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	writeTestFile(t, in, "game-metazooa.json", `[{"name": "dodo", "scientific": "Raphus cucullatus"}]`)

	var stdout, stderr bytes.Buffer
	err := run(append(baseArgs(t, in, out), "metazooa"), &stdout, &stderr)
	if !errors.Is(err, taxonomy.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)
	cfgPath := filepath.Join(t.TempDir(), "cladeguess.yaml")
	writeTestFile(t, filepath.Dir(cfgPath), filepath.Base(cfgPath),
		"input_dir: "+in+"\noutput_dir: "+out+"\nstrategy: greedy\nformat: toon\ndatasets: [metaflora]\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--config", cfgPath}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	got := readFile(t, filepath.Join(out, "decision-metaflora.toon"))
	if !strings.Contains(got, "strategy: greedy") {
		t.Errorf("config strategy not applied:\n%s", got)
	}

	// Flags beat the file.
	stdout.Reset()
	if err := run([]string{"--config", cfgPath, "-f", "text", "metazooa"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "decision-metazooa.txt")); err != nil {
		t.Errorf("format flag not applied: %v", err)
	}
}

func TestRunVerboseLogsSteps(t *testing.T) {
	t.Parallel()
	in, out := createSampleInput(t)

	var stdout, stderr bytes.Buffer
	if err := run(append(baseArgs(t, in, out), "-v", "metazooa"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"parsed outline", "bound candidates", "decision step", "dataset done"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("verbose log missing %q", want)
		}
	}
}

func TestLCA(t *testing.T) {
	t.Parallel()
	in, _ := createSampleInput(t)

	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{"dog", "wolf"}, "C\nA/C\n"},
		{[]string{"cat", "wolf"}, "A\nA\n"},
		{[]string{"cat"}, "Felis catus\nA/B/Felis catus\n"},
	}
	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		args := []string{"lca", "--config", filepath.Join(t.TempDir(), "none.yaml"), "-i", in, "metazooa"}
		if err := run(append(args, tt.labels...), &stdout, &stderr); err != nil {
			t.Fatalf("lca %v: %v", tt.labels, err)
		}
		if got := stdout.String(); got != tt.want {
			t.Errorf("lca %v = %q, want %q", tt.labels, got, tt.want)
		}
	}
}

func TestLCAErrors(t *testing.T) {
	t.Parallel()
	in, _ := createSampleInput(t)
	cfg := filepath.Join(t.TempDir(), "none.yaml")

	var stdout, stderr bytes.Buffer
	err := run([]string{"lca", "--config", cfg, "-i", in, "metazooa", "dog", "dodo"}, &stdout, &stderr)
	if !errors.Is(err, taxonomy.ErrNotFound) {
		t.Errorf("unknown label: error = %v, want ErrNotFound", err)
	}

	err = run([]string{"lca", "--config", cfg, "-i", in, "metazooa"}, &stdout, &stderr)
	if err == nil {
		t.Error("expected error for missing labels")
	}
}

func TestStampMatches(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	d := discover.Dataset{Name: "metazooa"}
	cfgOrdered := &config.Config{Strategy: "ordered", Format: config.FormatText}
	cfgGreedy := &config.Config{Strategy: "greedy", Format: config.FormatText}

	ordered, err := settingsStamp(cfgOrdered, d)
	if err != nil {
		t.Fatal(err)
	}
	greedy, err := settingsStamp(cfgGreedy, d)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, ".stamp-metazooa")
	if stampMatches(path, ordered) {
		t.Error("missing stamp should not match")
	}
	writeTestFile(t, dir, ".stamp-metazooa", string(ordered))
	if !stampMatches(path, ordered) {
		t.Error("identical settings should match")
	}
	if stampMatches(path, greedy) {
		t.Error("different strategy should not match")
	}
}

func TestCacheIsFresh(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "in.txt", "x")
	writeTestFile(t, dir, "out.txt", "y")

	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(in, old, old); err != nil {
		t.Fatal(err)
	}

	if !cacheIsFresh([]string{out}, []string{in}) {
		t.Error("newer output should be fresh")
	}
	if cacheIsFresh([]string{out, filepath.Join(dir, "missing")}, []string{in}) {
		t.Error("missing output should not be fresh")
	}
	if cacheIsFresh([]string{in}, []string{out}) {
		t.Error("older output should not be fresh")
	}
}
