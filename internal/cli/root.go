// Package cli implements the sympatch command line interface.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/symtools/sympatch/internal/config"
	"github.com/symtools/sympatch/internal/logging"
	"github.com/symtools/sympatch/internal/rewrite"
	"github.com/symtools/sympatch/internal/symfile"
	"github.com/symtools/sympatch/pkg/version"
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the sympatch command tree.
func NewRootCmd() *cobra.Command {
	var (
		regex     string
		replace   string
		rulePairs pairList
		rulesFile string
		output    string
		dryRun    bool
		backup    bool
		logLevel  string
		logJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "sympatch [flags] <file|glob> [file ...]",
		Short: "Rewrite source file paths recorded in debug symbols",
		Long: `Rewrite the source file paths embedded in the debug symbols of ELF
binaries, so absolute build-machine paths can be replaced with portable
ones before redistribution.

Each file is patched in place: the DWARF data in the binary itself, or the
split companion named by its .gnu_debuglink section, whose checksum is
updated to match. Files without locatable debug symbols are skipped with a
warning; files that fail to parse or patch are reported and the run
continues with the remaining files.`,
		Example: `  sympatch --regex '^/build/workspace' --replace /src ./dist/app
  sympatch --rule /home/ci/proj=/proj bin/app 'bin/*.so'
  sympatch --rules rules.yaml --dry-run ./dist/app`,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := buildRule(cmd, regex, replace, rulePairs.rules, rulesFile)
			if err != nil {
				return err
			}
			files, err := expandArgs(args)
			if err != nil {
				return err
			}
			if output != "" && len(files) != 1 {
				return fmt.Errorf("--output requires exactly one input file, got %d", len(files))
			}

			// Arguments are valid; failures past this point are per-file.
			cmd.SilenceUsage = true

			logCfg := logging.Config{
				Level:  logLevel,
				Pretty: !logJSON,
				Output: cmd.ErrOrStderr(),
			}
			logger := logging.New(logCfg)
			logger.Debug().Str("rule", rule.String()).Int("files", len(files)).Msg("starting")

			patcher := symfile.NewPatcher(logging.NewWithComponent(logCfg, "patcher"))
			failed := 0
			for _, file := range files {
				rep, err := patcher.Patch(symfile.Options{
					Input:  file,
					Output: output,
					Rule:   rule,
					DryRun: dryRun,
					Backup: backup,
				})
				if err != nil {
					logger.Error().Err(err).Str("file", file).Msg("patch failed")
					failed++
					continue
				}
				if rep.Skipped {
					continue
				}
				if dryRun {
					printRewrites(cmd, rep)
				}
				logger.Info().
					Str("file", file).
					Str("debug_file", rep.DebugFile).
					Int("paths", len(rep.Paths)).
					Int("rewritten", len(rep.Rewritten)).
					Bool("dry_run", dryRun).
					Msg("processed")
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&regex, "regex", "", "Regular expression matched against each recorded path")
	cmd.Flags().StringVar(&replace, "replace", "", "Replacement for --regex matches ($1-style groups allowed)")
	cmd.Flags().Var(&rulePairs, "rule", "Literal prefix substitution as from=to (repeatable)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rules file with ordered substitutions")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the patched binary here instead of in place (single file only)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show planned rewrites without writing")
	cmd.Flags().BoolVar(&backup, "backup", false, "Keep .bak copies of files rewritten in place")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log JSON instead of human-readable output")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// buildRule resolves the rewrite rule from the flags: exactly one of the
// regex pair, --rule pairs or a rules file, falling back to the default
// rules file when none is given.
func buildRule(cmd *cobra.Command, regex, replace string, pairs []rewrite.Rule, rulesFile string) (rewrite.Rule, error) {
	regexSet := cmd.Flags().Changed("regex") || cmd.Flags().Changed("replace")

	sources := 0
	if regexSet {
		sources++
	}
	if len(pairs) > 0 {
		sources++
	}
	if rulesFile != "" {
		sources++
	}

	switch sources {
	case 0:
		rule, err := config.LoadDefault()
		if err != nil {
			return nil, err
		}
		if rule == nil {
			return nil, fmt.Errorf("no rewrite rule given: use --regex/--replace, --rule or --rules")
		}
		return rule, nil
	case 1:
	default:
		return nil, fmt.Errorf("use only one of --regex/--replace, --rule and --rules")
	}

	switch {
	case regexSet:
		if !cmd.Flags().Changed("regex") || !cmd.Flags().Changed("replace") {
			return nil, fmt.Errorf("--regex and --replace must be used together")
		}
		return rewrite.NewRegexpRule(regex, replace)
	case len(pairs) > 0:
		return rewrite.Chain(pairs...), nil
	default:
		return config.Load(rulesFile)
	}
}

// expandArgs turns the positional arguments into a file list, expanding
// glob patterns the shell did not.
func expandArgs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q matched no files", arg)
		}
		files = append(files, matches...)
	}
	return files, nil
}

func printRewrites(cmd *cobra.Command, rep *symfile.Report) {
	olds := make([]string, 0, len(rep.Rewritten))
	for old := range rep.Rewritten {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	for _, old := range olds {
		cmd.Printf("%s: %s -> %s\n", rep.DebugFile, old, rep.Rewritten[old])
	}
}

// pairList collects repeated --rule from=to flags.
type pairList struct {
	rules []rewrite.Rule
	specs []string
}

var _ pflag.Value = (*pairList)(nil)

func (p *pairList) Set(value string) error {
	from, to, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("rule %q must have the form from=to", value)
	}
	rule, err := rewrite.NewLiteralRule(from, to)
	if err != nil {
		return err
	}
	p.rules = append(p.rules, rule)
	p.specs = append(p.specs, value)
	return nil
}

func (p *pairList) String() string { return strings.Join(p.specs, ",") }
func (p *pairList) Type() string   { return "from=to" }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("sympatch version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
