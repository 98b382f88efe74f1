package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tahopetis/crate/domain/audit"
	"github.com/tahopetis/crate/domain/ci"
	"github.com/tahopetis/crate/domain/graph"
	"github.com/tahopetis/crate/domain/lifecycle"
	"github.com/tahopetis/crate/domain/relationships"
	"github.com/tahopetis/crate/domain/users"
	"github.com/tahopetis/crate/internal/seed"
	"github.com/tahopetis/crate/pkg/schema"
)

var (
	seedAs     string
	seedDryRun bool
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Create CI types, lifecycles and relationship types from a YAML file",
	Long: `seed reads a catalog document and creates every entry that does not
exist yet. Rows are written through the same validation and audit path as the
API, attributed to the user given with --as.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	fh, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()

	doc, err := seed.Parse(fh)
	if err != nil {
		return err
	}
	if seedDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ci types, %d lifecycle types, %d relationship types\n",
			args[0], len(doc.CITypes), len(doc.LifecycleTypes), len(doc.RelationshipTypes))
		return nil
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	user, err := users.NewRepository(e.db, e.log).GetByEmail(ctx, seedAs)
	if err != nil {
		return fmt.Errorf("resolve --as %q: %w", seedAs, err)
	}

	// A nil mirror skips graph writes.
	var mirror *graph.Mirror
	if e.cfg.Neo4j.Enabled() {
		store, closeGraph, err := e.graphStore(ctx)
		if err != nil {
			return err
		}
		defer closeGraph()
		mirror = graph.NewMirror(store, graph.NewSyncQueue(e.db, e.cfg, e.log), e.log)
	}

	recorder := audit.NewService(audit.NewRepository(e.db, e.log), e.log)
	seeder := seed.NewSeeder(
		ci.NewService(ci.NewRepository(e.db, e.log), schema.NewValidator(), mirror, recorder, e.log),
		lifecycle.NewService(lifecycle.NewRepository(e.db, e.log), recorder, e.log),
		relationships.NewService(relationships.NewRepository(e.db, e.log), mirror, recorder, e.log),
		e.log,
	)

	res, err := seeder.Apply(ctx, doc, audit.Actor{UserID: user.ID, UserAgent: "crate-cli"})
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func init() {
	seedCmd.Flags().StringVar(&seedAs, "as", "", "email of the user the rows are attributed to")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "parse and check the file without writing")
	rootCmd.AddCommand(seedCmd)
}
