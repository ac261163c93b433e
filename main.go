package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shakram02/go-mcp-sql-tools/internal/config"
	"github.com/shakram02/go-mcp-sql-tools/internal/telemetry"
	"github.com/shakram02/go-mcp-sql-tools/internal/tools"
)

const serverName = "mcp-sql-tools"

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   serverName,
	Short: "MCP server exposing database introspection and query tools",
	Long: `mcp-sql-tools serves database tools over the Model Context Protocol.
Tools list schemas and tables, describe tables, run SQL queries and call
SPASQL, SPARQL and assistant procedures on PostgreSQL, MySQL and SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serverName, Version)
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the server registers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		defs := tools.New(cfg, nil).ServerTools()
		sort.Slice(defs, func(i, j int) bool { return defs[i].Tool.Name < defs[j].Tool.Name })

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, d := range defs {
			fmt.Fprintf(w, "%s\t%s\n", d.Tool.Name, d.Tool.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MCP_SQL_CONFIG"), "path to a TOML config file")
	rootCmd.AddCommand(serveCmd, toolsCmd, versionCmd)
}

func main() {
	telemetry.ServiceVersion = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
