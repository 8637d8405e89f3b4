package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/salience/internal/store"
)

// PackagesOptions holds flags for the packages command.
type PackagesOptions struct {
	*RootOptions
	Database string
}

// PackageHistory is the stored versions of one package and the rule
// outcomes of its latest version.
type PackageHistory struct {
	Name     string                `json:"name"`
	Versions []store.PackageRecord `json:"versions"`
	Rules    []store.RuleBuild     `json:"rules"`
}

// NewPackagesCommand creates the packages command.
func NewPackagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PackagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "packages [name]",
		Short: "List packages saved by compile --db",
		Long: `List the packages in a store, latest version of each.

With a package name, list every saved version of that package and the
per-rule build outcome of the latest one.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runPackages(opts, name, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite store to read")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPackages(opts *PackagesOptions, name string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(cmd, opts.RootOptions)

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening store", err)
	}
	defer st.Close()

	if name == "" {
		records, err := st.ListPackages(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "listing packages", err)
		}
		if formatter.json() {
			return formatter.Success(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(formatter.Writer, "No packages stored.")
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(formatter.Writer, "%-24s %s  seq=%d  rules=%d\n", r.Name, shortHash(r.Hash), r.Seq, r.Rules)
		}
		return nil
	}

	versions, err := st.History(ctx, name)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading history", err)
	}
	if len(versions) == 0 {
		msg := fmt.Sprintf("package %q not found", name)
		_ = formatter.Error(ErrCodeUnknownPackage, msg, nil)
		return WrapExitError(ExitCommandError, msg, store.ErrNotFound)
	}
	latest := versions[len(versions)-1]
	rules, err := st.RuleBuilds(ctx, name, latest.Hash)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading rule builds", err)
	}

	history := PackageHistory{Name: name, Versions: versions, Rules: rules}
	if formatter.json() {
		return formatter.Success(history)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Package %s\n", name)
	for _, v := range versions {
		fmt.Fprintf(w, "  seq=%d  %s  rules=%d\n", v.Seq, shortHash(v.Hash), v.Rules)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rules (seq=%d):\n", latest.Seq)
	for _, r := range rules {
		if r.Built() {
			fmt.Fprintf(w, "  ✓ %s\n", r.Rule)
			continue
		}
		fmt.Fprintf(w, "  ✗ %s: %s: %s\n", r.Rule, r.Code, r.Message)
	}
	return nil
}
