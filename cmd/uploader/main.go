package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maneesh/docvault/internal/chunker"
	"github.com/maneesh/docvault/internal/client"
	"github.com/maneesh/docvault/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "uploader [flags] FILE...",
	Short: "Upload files to a docvault server in resumable chunks",
	Long: `Uploads each FILE to the docvault upload endpoint, one chunk at a time.
A rejected chunk fails that file; rerun the command to start it over.

Flags can also be set through DOCVAULT_* environment variables.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUpload,
}

func init() {
	f := rootCmd.Flags()
	f.String("server", "http://localhost:8080", "base URL of the upload service")
	f.String("chunk-size", humanize.IBytes(uint64(chunker.DefaultChunkSize)), "chunk size, at most the server's maximum chunk size")
	f.String("direct-threshold", "0", "send files up to this size in one request (0 disables)")
	f.String("storage-path", "", "destination folder on the server")
	f.Int("retries", 0, "transport-level retries per chunk")
	f.Bool("checksums", false, "send a SHA-256 digest with every chunk")
	f.Bool("quiet", false, "do not print progress")
	f.Bool("debug", false, "enable debug logging")

	viper.SetEnvPrefix("DOCVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlags(f)
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger.SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if viper.GetBool("debug") {
		logger.SetLevel(zerolog.DebugLevel)
	}

	chunkSize, err := humanize.ParseBytes(viper.GetString("chunk-size"))
	if err != nil {
		return fmt.Errorf("invalid --chunk-size: %w", err)
	}
	directThreshold, err := humanize.ParseBytes(viper.GetString("direct-threshold"))
	if err != nil {
		return fmt.Errorf("invalid --direct-threshold: %w", err)
	}

	endpoint := strings.TrimSuffix(viper.GetString("server"), "/") + "/upload"
	uploader := client.New(endpoint,
		client.WithChunkSize(int64(chunkSize)),
		client.WithDirectThreshold(int64(directThreshold)),
		client.WithStoragePath(viper.GetString("storage-path")),
		client.WithRetries(viper.GetInt("retries")),
		client.WithChecksums(viper.GetBool("checksums")),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, path := range args {
		if err := uploadOne(ctx, uploader, path, viper.GetBool("quiet")); err != nil {
			logger.Error().Err(err).Str("file", path).Msg("upload failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}

func uploadOne(ctx context.Context, uploader *client.Uploader, path string, quiet bool) error {
	f, err := client.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	started := time.Now()
	onProgress := func(p int) {
		if !quiet {
			fmt.Fprintf(os.Stderr, "\r%-40s %3d%%", f.Name(), p)
		}
	}

	url, err := uploader.UploadFile(ctx, f, onProgress)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	logger.Info().
		Str("file", f.Name()).
		Str("size", humanize.IBytes(uint64(f.Size()))).
		Dur("elapsed", time.Since(started).Round(time.Millisecond)).
		Msg("uploaded")
	fmt.Println(url)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
