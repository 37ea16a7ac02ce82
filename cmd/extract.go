package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"linkrelay/internal/common"
	"linkrelay/internal/extract"
	"linkrelay/internal/ui"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Parse a link list and print the entries",
	Long: `Parse a .txt or .html link list the same way the bot does and print the
entries it would download, without downloading anything.`,
	Args: cobra.ExactArgs(1),
	RunE: extractRun,
}

func extractRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	entries := extract.Source(filepath.Base(path), data)
	if len(entries) == 0 {
		return fmt.Errorf("%s: %w", path, common.ErrParseEmpty)
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{strconv.Itoa(i + 1), e.Title, e.URL})
	}

	p := ui.NewPrinter(os.Stdout)
	if p.Styled() {
		p.Title(fmt.Sprintf("%d links in %s", len(entries), filepath.Base(path)))
	}
	p.Table([]string{"#", "Title", "URL"}, rows)
	return nil
}
