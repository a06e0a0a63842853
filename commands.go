package tasting

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCommand creates a Cobra command tree for the Kiwi Tasting toolkit.
// The returned command can be executed directly or added to a parent
// CLI's root command.
//
// Commands provided:
//   - fetch <reference> [--extract] [--resume] [--force-refresh] [--offline]
//   - models [--config <models.yaml>]
//   - datasets [--config <data.yaml>]
//   - show <dataset> [--config <data.yaml>] [--index N] [--source]
//
// Global flags: --json, --quiet
func NewCommand(cfg Config, opts ...Option) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
	)

	// Cache will be created in PersistentPreRunE
	var cache *Cache

	cmd := &cobra.Command{
		Use:   "kiwi-tasting",
		Short: "Inspect quality estimation predictions",
		Long:  "Fetch model/dataset artifacts, browse registries, and render word-level quality tags.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip cache creation for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			cache, err = NewCache(cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to initialize cache: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")

	cmd.AddCommand(fetchCmd(&cache, &quiet))
	cmd.AddCommand(modelsCmd(&jsonOutput))
	cmd.AddCommand(datasetsCmd(&jsonOutput))
	cmd.AddCommand(showCmd(&quiet))

	return cmd
}

func fetchCmd(cache **Cache, quiet *bool) *cobra.Command {
	var (
		extract        bool
		forceReextract bool
		resume         bool
		forceRefresh   bool
		offline        bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <reference>",
		Short: "Resolve an artifact reference to a local path",
		Long:  "Resolve a local path or URL to a local file, downloading and caching it if remote.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []ResolveOption{}
			if extract {
				opts = append(opts, WithExtract())
			}
			if forceReextract {
				opts = append(opts, WithForceReextract())
			}
			if resume {
				opts = append(opts, WithResume())
			}
			if forceRefresh {
				opts = append(opts, WithForceRefresh())
			}
			if offline {
				opts = append(opts, WithOfflineOnly())
			}
			if !*quiet {
				errOut := cmd.ErrOrStderr()
				opts = append(opts, WithProgress(func(received, total int64) {
					if total > 0 {
						fmt.Fprintf(errOut, "\rdownloading... %d/%d bytes", received, total)
					} else {
						fmt.Fprintf(errOut, "\rdownloading... %d bytes", received)
					}
				}))
			}

			path, err := (*cache).Resolve(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			if !*quiet {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&extract, "extract", false, "Extract zip/tar archives and return the directory")
	cmd.Flags().BoolVar(&forceReextract, "force-reextract", false, "Re-extract even if already extracted")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume an interrupted download")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Re-download even if cached")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use only already-cached files, no network")
	return cmd
}

func modelsCmd(jsonOutput *bool) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models from the model registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := LoadModelRegistry(configPath)
			if err != nil {
				return err
			}
			return outputModelRegistry(cmd.OutOrStdout(), registry, *jsonOutput)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "models.yaml", "Model registry file")
	return cmd
}

func datasetsCmd(jsonOutput *bool) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets from the dataset registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := LoadDatasetRegistry(configPath)
			if err != nil {
				return err
			}
			return outputDatasetRegistry(cmd.OutOrStdout(), registry, *jsonOutput)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "data.yaml", "Dataset registry file")
	return cmd
}

func showCmd(quiet *bool) *cobra.Command {
	var (
		configPath string
		index      int
		showSource bool
	)

	cmd := &cobra.Command{
		Use:   "show <dataset>",
		Short: "Show a sentence pair with its gold annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := LoadDatasetRegistry(configPath)
			if err != nil {
				return err
			}
			entry, ok := registry[args[0]]
			if !ok {
				return fmt.Errorf("%w: dataset %q not in registry", ErrConfig, args[0])
			}

			ds, err := LoadDataset(entry)
			if err != nil {
				return err
			}
			if ds.Len() == 0 {
				return fmt.Errorf("%w: dataset %q is empty", ErrDataset, args[0])
			}
			i := clampIndex(index, ds.Len())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pair %d/%d\n", i, ds.Len()-1)
			fmt.Fprintf(out, "source: %s\n", ds.SourceSentences[i])
			fmt.Fprintf(out, "target: %s\n", ds.TargetSentences[i])
			if hter, err := ds.HTER(i); err == nil {
				fmt.Fprintf(out, "HTER: %.6f\n", hter)
			}

			tokens, tags := ds.TargetTokenTags(i)
			writeAnnotations(out, "target tags", AnnotateTokens(tokens, tags, TagsToProbabilities(tags)))

			if showSource {
				tokens, tags := ds.SourceTokenTags(i)
				if tags == nil {
					fmt.Fprintln(out, "no gold source tags specified")
				} else {
					writeAnnotations(out, "source tags", AnnotateTokens(tokens, tags, TagsToProbabilities(tags)))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "data.yaml", "Dataset registry file")
	cmd.Flags().IntVar(&index, "index", 0, "Sentence pair index")
	cmd.Flags().BoolVar(&showSource, "source", false, "Also show the source side")
	return cmd
}

// clampIndex bounds i to [0, n).
func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func writeAnnotations(w io.Writer, title string, spans []AnnotatedToken) {
	fmt.Fprintf(w, "%s:\n", title)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, span := range spans {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", span.Token, span.Tag, span.Color)
	}
	tw.Flush()
}

func outputModelRegistry(w io.Writer, registry map[string]ModelEntry, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(registry)
	}

	names := sortedKeys(registry)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLP\tURL")
	for _, name := range names {
		entry := registry[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, entry.LP, entry.URL)
	}
	return tw.Flush()
}

func outputDatasetRegistry(w io.Writer, registry map[string]DatasetEntry, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(registry)
	}

	names := sortedKeys(registry)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tTARGET")
	for _, name := range names {
		entry := registry[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, entry.Source, entry.Target)
	}
	return tw.Flush()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
