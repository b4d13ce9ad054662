// cladeguess builds guess-the-species decision trees from a phylogenetic
// outline and a candidate list.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/cladeguess/internal/config"
	"github.com/phobologic/cladeguess/internal/decision"
	"github.com/phobologic/cladeguess/internal/discover"
	"github.com/phobologic/cladeguess/internal/logging"
	"github.com/phobologic/cladeguess/internal/model"
	"github.com/phobologic/cladeguess/internal/parse"
	"github.com/phobologic/cladeguess/internal/ranking"
	"github.com/phobologic/cladeguess/internal/report"
	"github.com/phobologic/cladeguess/internal/taxonomy"
	"github.com/phobologic/cladeguess/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(context.Background())
}

// options holds flag values shared by the root command and its subcommands.
type options struct {
	configPath string
	inputDir   string
	outputDir  string
	strategy   string
	format     string
	ignoreFile string
	outline    bool
	force      bool
	verbose    bool
	version    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "cladeguess [dataset...]",
		Short: "Build guess-the-species decision trees",
		Long: `cladeguess reads phylo-<dataset>.txt and game-<dataset>.json from the input
directory and writes species-<dataset>.txt and decision-<dataset>.txt (or
.toon) to the output directory.

Datasets: ` + strings.Join(discover.Datasets, ", ") + `, or "` + discover.All + `".`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.version {
				_, _ = fmt.Fprintf(stdout, "cladeguess %s\n", version)
				return nil
			}
			cfg, err := opts.load(cmd, args)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, opts, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runDatasets(cmd.Context(), cfg, opts.force, logger, stdout)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultPath, "config file path")
	pf.StringVarP(&opts.inputDir, "input", "i", "", "input directory")
	pf.StringVar(&opts.ignoreFile, "ignore", "", "lineage exclusion pattern file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	f := cmd.Flags()
	f.StringVarP(&opts.outputDir, "output", "o", "", "output directory")
	f.StringVarP(&opts.strategy, "strategy", "s", "", "guess strategy: ordered or greedy")
	f.StringVarP(&opts.format, "format", "f", "", "decision report format: text or toon")
	f.BoolVar(&opts.outline, "outline", false, "also write outline-<dataset>.txt")
	f.BoolVar(&opts.force, "force", false, "rebuild even when outputs are up to date")
	f.BoolVarP(&opts.version, "version", "V", false, "show version and exit")

	cmd.AddCommand(newInitCmd(stdout, stderr))
	cmd.AddCommand(newLCACmd(opts, stdout, stderr))
	return cmd
}

// load reads the config file and layers positional datasets and explicitly
// set flags over it.
func (o *options) load(cmd *cobra.Command, datasets []string) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if len(datasets) > 0 {
		cfg.Datasets = datasets
	}
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("input") {
		cfg.InputDir = o.inputDir
	}
	if changed("output") {
		cfg.OutputDir = o.outputDir
	}
	if changed("strategy") {
		cfg.Strategy = o.strategy
	}
	if changed("format") {
		cfg.Format = o.format
	}
	if changed("ignore") {
		cfg.IgnoreFile = o.ignoreFile
	}
	if changed("outline") {
		cfg.EmitOutline = o.outline
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, opts *options, stderr io.Writer) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: opts.verbose,
	}, stderr)
}

// result is the outcome of one dataset pipeline.
type result struct {
	dataset string
	summary *model.Summary
	fresh   bool
}

func (r result) String() string {
	if r.fresh {
		return r.dataset + ": up to date"
	}
	return fmt.Sprintf("%s: %d species, max %d, avg %s",
		r.dataset, r.summary.Species, r.summary.MaxGuesses, report.FormatAvg(r.summary.AvgGuesses))
}

// runDatasets runs one independent pipeline per dataset and prints their
// summaries in request order.
func runDatasets(ctx context.Context, cfg *config.Config, force bool, logger *zap.Logger, stdout io.Writer) error {
	names, err := discover.Expand(cfg.Datasets)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	results := make([]result, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := processDataset(cfg, name, force, logger.Named(name))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		_, _ = fmt.Fprintln(stdout, r)
	}
	return nil
}

func outputPaths(cfg *config.Config, name string) (species, decisions, outline string) {
	ext := ".txt"
	if cfg.Format == config.FormatTOON {
		ext = ".toon"
	}
	species = filepath.Join(cfg.OutputDir, "species-"+name+".txt")
	decisions = filepath.Join(cfg.OutputDir, "decision-"+name+ext)
	if cfg.EmitOutline {
		outline = filepath.Join(cfg.OutputDir, "outline-"+name+".txt")
	}
	return species, decisions, outline
}

func processDataset(cfg *config.Config, name string, force bool, logger *zap.Logger) (result, error) {
	d, err := discover.Resolve(cfg.InputDir, name, cfg.IgnoreFile)
	if err != nil {
		return result{}, err
	}

	speciesPath, decisionPath, outlinePath := outputPaths(cfg, name)
	outputs := []string{speciesPath, decisionPath}
	if outlinePath != "" {
		outputs = append(outputs, outlinePath)
	}
	stampPath := filepath.Join(cfg.OutputDir, ".stamp-"+name)
	stamp, err := settingsStamp(cfg, d)
	if err != nil {
		return result{}, err
	}
	if !force && stampMatches(stampPath, stamp) && cacheIsFresh(outputs, d.Inputs()) {
		logger.Debug("outputs up to date", zap.Strings("outputs", outputs))
		return result{dataset: name, fresh: true}, nil
	}

	tree, err := loadTaxonomy(d, true, logger)
	if err != nil {
		return result{}, err
	}

	strategy, err := decision.ParseStrategy(cfg.Strategy)
	if err != nil {
		return result{}, err
	}
	order := ranking.Order(tree)
	root, err := decision.NewBuilder(tree, order,
		decision.WithStrategy(strategy),
		decision.WithLogger(logger.Named("decision")),
	).BuildAll()
	if err != nil {
		return result{}, fmt.Errorf("building decision tree: %w", err)
	}
	logger.Debug("built decision tree", zap.Int("nodes", root.Size()))

	// Everything is rendered before the first file is touched.
	universe := tree.Labels()
	sum := report.Summarize(name, string(strategy), tree, root)

	var decisions, species, outline bytes.Buffer
	if cfg.Format == config.FormatTOON {
		if err := report.Check(tree, root, universe); err != nil {
			return result{}, err
		}
		decisions.WriteString(toon.Encode(sum) + "\n")
	} else if err := report.WriteDecisions(&decisions, tree, root, universe); err != nil {
		return result{}, err
	}
	if err := report.WriteSpecies(&species, tree); err != nil {
		return result{}, err
	}
	files := map[string][]byte{
		speciesPath:  species.Bytes(),
		decisionPath: decisions.Bytes(),
	}
	if outlinePath != "" {
		if err := report.WriteOutline(&outline, tree); err != nil {
			return result{}, err
		}
		files[outlinePath] = outline.Bytes()
	}

	for _, p := range outputs {
		if err := os.WriteFile(p, files[p], 0o644); err != nil {
			return result{}, fmt.Errorf("writing %s: %w", p, err)
		}
	}
	if err := os.WriteFile(stampPath, stamp, 0o644); err != nil {
		return result{}, fmt.Errorf("writing %s: %w", stampPath, err)
	}

	logger.Info("dataset done",
		zap.Int("species", sum.Species),
		zap.Int("max", sum.MaxGuesses),
		zap.Float64("avg", sum.AvgGuesses),
	)
	return result{dataset: name, summary: sum}, nil
}

// loadTaxonomy parses the outline of d and binds its candidates, dropping
// excluded ones first when exclude is set.
func loadTaxonomy(d discover.Dataset, exclude bool, logger *zap.Logger) (*taxonomy.Tree, error) {
	f, err := os.Open(d.Outline)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tree, err := parse.Outline(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", d.Outline, err)
	}
	logger.Debug("parsed outline", zap.String("path", d.Outline), zap.Int("nodes", tree.Len()))

	cands, err := discover.LoadCandidates(d.Candidates)
	if err != nil {
		return nil, err
	}

	if exclude {
		gi, err := discover.LoadIgnore(d.Ignore)
		if err != nil {
			return nil, err
		}
		var dropped []model.Candidate
		cands, dropped = discover.Exclude(tree, cands, gi)
		for _, c := range dropped {
			logger.Info("excluded candidate", zap.String("label", c.Label), zap.String("scientific", c.Scientific))
		}
	}

	if err := tree.Bind(cands); err != nil {
		return nil, fmt.Errorf("binding %s: %w", d.Candidates, err)
	}
	logger.Debug("bound candidates", zap.Int("count", len(cands)))
	return tree, nil
}

// stampSettings are the settings, besides input files, that change what a
// dataset run writes.
type stampSettings struct {
	Strategy string `yaml:"strategy"`
	Format   string `yaml:"format"`
	Ignore   string `yaml:"ignore"`
	Outline  bool   `yaml:"outline"`
}

func settingsStamp(cfg *config.Config, d discover.Dataset) ([]byte, error) {
	data, err := yaml.Marshal(stampSettings{
		Strategy: cfg.Strategy,
		Format:   cfg.Format,
		Ignore:   d.Ignore,
		Outline:  cfg.EmitOutline,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding settings stamp: %w", err)
	}
	return data, nil
}

// stampMatches reports whether the stamp at path records want.
func stampMatches(path string, want []byte) bool {
	got, err := os.ReadFile(path)
	return err == nil && bytes.Equal(got, want)
}

// cacheIsFresh reports whether every output exists and is newer than every
// input.
func cacheIsFresh(outputs, inputs []string) bool {
	for _, out := range outputs {
		oi, err := os.Stat(out)
		if err != nil {
			return false
		}
		for _, in := range inputs {
			ii, err := os.Stat(in)
			if err != nil {
				return false
			}
			if !ii.ModTime().Before(oi.ModTime()) {
				return false
			}
		}
	}
	return true
}
