package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"linkrelay/internal/download"
	"linkrelay/internal/media"
	"linkrelay/internal/ui"
)

var (
	flagFetchName  string
	flagFetchProbe bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a single URL into the staging directory",
	Long: `Run the downloader once for a URL, outside the bot. The resulting file is
left in the staging directory and its path is printed. With --probe only the
media metadata is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: fetchRun,
}

func init() {
	fetchCmd.Flags().StringVarP(&flagFetchName, "name", "n", "", "File name stem (default: probed title)")
	fetchCmd.Flags().BoolVar(&flagFetchProbe, "probe", false, "Only print media metadata")
}

// stderrProgress prints a single updating progress line.
type stderrProgress struct{}

func (stderrProgress) ReportProgress(ctx context.Context, p media.Progress) error {
	_, err := fmt.Fprintf(os.Stderr, "\r%-7s %-12s ETA %-8s", p.Percent, p.Speed, p.ETA)
	return err
}

func fetchRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := args[0]

	engine, err := download.NewYTDLP(cfg.YTDLPPath, cfg.ExternalDownloader)
	if err != nil {
		return err
	}
	dir, err := cfg.EnsureDownloadDir()
	if err != nil {
		return err
	}

	fetcher := download.NewFetcher(engine, download.Options{
		Dir:              dir,
		Alternates:       cfg.AlternateExtensions,
		DefaultReferer:   cfg.DefaultReferer,
		ProgressInterval: cfg.ProgressInterval.Duration,
	}, logger)

	name := flagFetchName
	if flagFetchProbe || name == "" {
		info, err := fetcher.Probe(ctx, url)
		if err != nil {
			if flagFetchProbe {
				return fmt.Errorf("probing %s: %w", url, err)
			}
			logger.Debug(ctx, "probe failed", "error", err)
		}
		if flagFetchProbe {
			return printInfo(info)
		}
		if info != nil && info.Title != "Unknown" {
			name = info.Title
		}
		if name == "" {
			name = media.PlaceholderTitle(1)
		}
	}

	res := fetcher.Fetch(ctx, media.DownloadRequest{
		URL:       url,
		Name:      name,
		Quality:   cfg.DefaultQuality(),
		SizeLimit: cfg.MaxFileSize,
	}, stderrProgress{})
	fmt.Fprintln(os.Stderr)

	switch r := res.(type) {
	case media.Success:
		if flagJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
				"path":   r.FilePath,
				"size":   r.FileSize,
				"format": r.Format,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", r.FilePath, humanize.IBytes(uint64(r.FileSize)))
		return nil
	case media.Failure:
		return fmt.Errorf("fetch failed: %s", r.String())
	}
	return fmt.Errorf("unexpected result %T", res)
}

func printInfo(info *media.VideoInfo) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	p := ui.NewPrinter(os.Stdout)
	p.Title(info.Title)
	p.Fields(
		[2]string{"Uploader", info.Uploader},
		[2]string{"Duration", strconv.FormatFloat(info.Duration, 'f', 0, 64) + "s"},
		[2]string{"Views", humanize.Comma(info.ViewCount)},
		[2]string{"Likes", humanize.Comma(info.LikeCount)},
		[2]string{"Thumbnail", info.Thumbnail},
	)
	return nil
}
