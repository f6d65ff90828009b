package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/allowlist"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing allowlist")
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter adapter allowlist",
	Long:  "Creates an allowlist YAML with a commented template. With no path,\nwrites to the default location. The starter list allows nothing:\nadapters must be added explicitly.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := allowlist.DefaultPath()
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(allowlist.DefaultYAML()), 0600); err != nil {
		return fmt.Errorf("write allowlist: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("The starter allowlist permits no adapters. Add entries before serving.")
	return nil
}
