// Rates CLI - administers the transfer rate dataset.
//
// Usage:
//   rates import --file rates.xlsx [--dry-run]
//   rates show
//   rates history --limit 20
//   rates serve --port 8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"transfer-rates/internal/api"
	"transfer-rates/internal/diff"
	"transfer-rates/internal/ingest"
	"transfer-rates/internal/store"
	"transfer-rates/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()
	platform.InitLogger()

	app := &cli.App{
		Name:    "rates",
		Usage:   "Transfer rate dataset administration",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Value:   "memory",
				Usage:   "Store backend (memory, postgres, clickhouse)",
				EnvVars: []string{"STORE_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Value:   "postgres://localhost:5432/transfer_rates?sslmode=disable",
				Usage:   "Postgres DSN",
				EnvVars: []string{"POSTGRES_DSN"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "transfer_rates",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			importCommand(),
			showCommand(),
			historyCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(c *cli.Context) (store.Store, error) {
	ctx := context.Background()
	switch c.String("store") {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		return store.OpenPostgres(ctx, c.String("postgres-dsn"))
	case "clickhouse":
		return store.OpenClickHouse(ctx, &store.ClickHouseConfig{
			Host:     c.String("clickhouse-host"),
			Port:     c.Int("clickhouse-port"),
			Database: c.String("clickhouse-database"),
			Username: c.String("clickhouse-user"),
			Password: c.String("clickhouse-password"),
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.String("store"))
	}
}

// =============================================================================
// IMPORT COMMAND
// =============================================================================

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Ingest a rate workbook, preview the delta, and commit it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the xlsx workbook",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Preview the delta without committing",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "Output format (table, json)",
			},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	ctx := context.Background()

	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read workbook: %w", err)
	}

	newTree, summary, err := ingest.Ingest(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "📊 Parsed %s\n", summary)

	st, err := openStore(c)
	if err != nil {
		return err
	}
	current, err := st.Current(ctx)
	if err != nil {
		return err
	}
	delta := diff.Diff(current, newTree, diff.Options{})

	if c.String("format") == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(delta); err != nil {
			return err
		}
	} else {
		printDelta(delta)
	}

	if c.Bool("dry-run") {
		fmt.Fprintln(os.Stderr, "Dry run, nothing committed.")
		return nil
	}

	newTree.Version = current.Version
	if err := st.Commit(ctx, newTree, "bulk-upload"); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✅ Committed version %d\n", newTree.Version)
	return nil
}

func printDelta(delta diff.Delta) {
	if delta.Empty() {
		fmt.Println("No changes against the current dataset.")
		return
	}
	for _, e := range delta.Added {
		fmt.Printf("  + %-14s %-16s %s\n", e.Destination, e.State, e.City)
	}
	for _, e := range delta.Removed {
		fmt.Printf("  - %-14s %-16s %s\n", e.Destination, e.State, e.City)
	}
	for _, ch := range delta.Changed {
		fmt.Printf("  ~ %-14s %-16s %-20s %s -> %s\n",
			ch.Destination, ch.State, ch.City,
			ch.OldPrice.StringFixed(2), ch.NewPrice.StringFixed(2))
	}
	fmt.Printf("%d added, %d removed, %d changed\n",
		len(delta.Added), len(delta.Removed), len(delta.Changed))
}

// =============================================================================
// SHOW COMMAND
// =============================================================================

func showCommand() *cli.Command {
	return &cli.Command{
		Name:   "show",
		Usage:  "Print the current rate tree",
		Action: runShow,
	}
}

func runShow(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	tree, err := st.Current(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Version %d, updated %s\n", tree.Version, tree.UpdatedAt.Format("2006-01-02 15:04:05"))
	for _, dk := range sortedKeys(tree.Destinations) {
		dest := tree.Destinations[dk]
		fmt.Printf("%s\n", dest.Key)
		for _, sk := range sortedKeys(dest.States) {
			state := dest.States[sk]
			fmt.Printf("  %s\n", state.Name)
			for _, city := range state.Cities {
				fmt.Printf("    %-24s $%s\n", city.Name, city.Price.StringFixed(2))
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List archived snapshots, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Maximum entries to list (0 = all)",
			},
		},
		Action: runHistory,
	}
}

func runHistory(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	entries, err := st.History(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history yet.")
		return nil
	}
	for _, e := range entries {
		d, s, ci := e.Snapshot.Counts()
		fmt.Printf("%s  %-20s v%-4d %dd/%ds/%dc\n",
			e.ArchivedAt.Format("2006-01-02 15:04:05"), e.ArchivedBy, e.Snapshot.Version, d, s, ci)
	}
	return nil
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "Listen port",
				EnvVars: []string{"PORT"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	server := api.NewServer(st)
	fmt.Fprintf(os.Stderr, "🚀 Rates server listening on port %d\n", c.Int("port"))
	return http.ListenAndServe(fmt.Sprintf(":%d", c.Int("port")), server.Routes())
}
