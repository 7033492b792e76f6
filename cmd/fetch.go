package main

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download input datasets",
}

var fetchBoundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Download and unpack the boundary shapefile archive",
	Long:  "Downloads boundary.source_url (HTTP or FTP), extracts the shapefile set from the ZIP archive and places it at boundary.shapefile_path.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Boundary.SourceURL == "" {
			return eris.New("boundary.source_url is not configured")
		}
		if cfg.Boundary.ShapefilePath == "" {
			return eris.New("boundary.shapefile_path is not configured")
		}

		if err := os.MkdirAll(cfg.Fetch.TempDir, 0o755); err != nil {
			return eris.Wrap(err, "create temp dir")
		}
		zipPath := filepath.Join(cfg.Fetch.TempDir, "boundary.zip")

		f, err := fetcherForURL(cfg.Boundary.SourceURL)
		if err != nil {
			return err
		}

		zap.L().Info("downloading boundary archive", zap.String("url", cfg.Boundary.SourceURL))
		n, err := f.DownloadToFile(ctx, cfg.Boundary.SourceURL, zipPath)
		if err != nil {
			return eris.Wrap(err, "download boundary archive")
		}
		zap.L().Info("boundary archive downloaded", zap.Int64("bytes", n))

		destDir := filepath.Dir(cfg.Boundary.ShapefilePath)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return eris.Wrap(err, "create shapefile dir")
		}

		shpPath, err := fetcher.ExtractShapefile(zipPath, destDir)
		if err != nil {
			return eris.Wrap(err, "extract boundary archive")
		}

		if shpPath != cfg.Boundary.ShapefilePath {
			zap.L().Warn("extracted shapefile name differs from configured path",
				zap.String("extracted", shpPath),
				zap.String("configured", cfg.Boundary.ShapefilePath),
			)
		}
		zap.L().Info("boundary shapefile ready", zap.String("path", shpPath))
		return nil
	},
}

// fetcherForURL picks the transport from the URL scheme.
func fetcherForURL(rawURL string) (fetcher.Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "parse url %s", rawURL)
	}
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   timeout,
		}), nil
	case "ftp":
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}), nil
	default:
		return nil, eris.Errorf("unsupported url scheme: %s", u.Scheme)
	}
}

func init() {
	fetchCmd.AddCommand(fetchBoundaryCmd)
	rootCmd.AddCommand(fetchCmd)
}
