package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"linkrelay/internal/ui"
	"linkrelay/internal/userdir"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Show user directory statistics",
	Args:  cobra.NoArgs,
	RunE:  usersRun,
}

func usersRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := cfg.UsersPath()
	if err != nil {
		return err
	}
	dir, err := userdir.Open(ctx, cfg.DatabaseURL, path, logger)
	if err != nil {
		return fmt.Errorf("opening user directory: %w", err)
	}
	defer dir.Close()

	recs, err := dir.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	var total uint64
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		total += r.TotalDownloads
		rows = append(rows, []string{
			strconv.FormatInt(r.UserID, 10),
			r.DisplayName,
			strconv.FormatUint(r.TotalDownloads, 10),
			humanize.Time(r.LastSeenAt),
		})
	}

	p := ui.NewPrinter(os.Stdout)
	p.Fields(
		[2]string{"Users", strconv.Itoa(len(recs))},
		[2]string{"Downloads", strconv.FormatUint(total, 10)},
	)
	if len(rows) > 0 {
		p.Table([]string{"User ID", "Name", "Downloads", "Last seen"}, rows)
	}
	return nil
}
