package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dsync-go/internal/app"
	"dsync-go/internal/config"
	"dsync-go/internal/dsync"
	"dsync-go/internal/transport"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, dsync.ErrConfiguration):
		return 2
	case errors.Is(err, dsync.ErrNotFound), errors.Is(err, dsync.ErrGone):
		return 3
	case errors.Is(err, dsync.ErrIntegrity), errors.Is(err, dsync.ErrDecryption), errors.Is(err, dsync.ErrDecompression):
		return 4
	default:
		return 1
	}
}

// newApp reads the config and creates a DSyncApp. The caller must defer app.Close().
// operation identifies the CLI command being run and names its log file.
func newApp(ctx context.Context, operation string) (*app.DSyncApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDSyncApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printReport(verb string, report *dsync.BatchReport) {
	for _, r := range report.Results {
		if r.Err != nil {
			fmt.Printf("FAILED  %s: %v\n", r.Path, r.Err)
		}
	}
	fmt.Printf("%s %d file(s), %d already tracked, %d failed\n",
		verb, report.Transferred(), report.Succeeded()-report.Transferred(), report.Failed())
}

var rootCmd = &cobra.Command{
	Use:          "dsync",
	Short:        "Chunked, encrypted file sync to remote endpoints",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and the endpoint list",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := transport.WriteTemplate(cfg.Transport.EndpointsFile); err != nil {
			return fmt.Errorf("failed to write endpoint list: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Sync Dir:  %s\n", cfg.SyncDir)
		fmt.Printf("Endpoints: %s (add one webhook URL per line)\n", cfg.Transport.EndpointsFile)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Sync Dir:   %s\n", cfg.SyncDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Transport:  %s (%s)\n", cfg.Transport.Type, cfg.Transport.EndpointsFile)
		fmt.Printf("Encryption: %s (%s)\n", cfg.Encryption.Type, cfg.Encryption.KeyPath)
		fmt.Printf("Chunk Size: %s\n", humanize.IBytes(uint64(cfg.Chunking.MaxChunkSize)))
		fmt.Printf("Journal:    %s %s\n", cfg.Journal.Type, cfg.Journal.Path)
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload [PATH...]",
	Short: "Upload files, or scan the whole sync dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "upload")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Upload(ctx, args)
		if report != nil {
			printReport("Uploaded", report)
		}
		if err != nil {
			return err
		}
		return report.Err()
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the sync dir uploaded until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "watch")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Watch(ctx)
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download [PATH]",
	Short: "Download one file, or every tracked file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "download")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			if out == "" {
				out = args[0]
			}
			if err := a.Download(ctx, args[0], out); err != nil {
				return err
			}
			fmt.Printf("Downloaded %s to %s\n", args[0], out)
			return nil
		}

		if out == "" {
			out = "."
		}
		report, err := a.DownloadAll(ctx, out)
		if report != nil {
			printReport("Downloaded", report)
		}
		if err != nil {
			return err
		}
		return report.Err()
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked files",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		all, _ := cmd.Flags().GetBool("all")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "list")
		if err != nil {
			return err
		}
		defer a.Close()

		catalog := a.Catalog()
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(catalog)
		}

		if catalog.Active() == 0 && !all {
			fmt.Println("No files tracked.")
			return nil
		}
		for _, f := range catalog.Files {
			if f.Deleted && !all {
				continue
			}
			flags := ""
			if f.Compressed {
				flags += "z"
			}
			if f.Deleted {
				flags += "d"
			}
			fmt.Printf("%-10s  %-3s  %3d chunk(s)  %s  %s\n",
				humanize.IBytes(uint64(f.FileSize)),
				flags,
				f.ChunkCount,
				humanize.Time(f.DateCreated.Time),
				f.FilePath,
			)
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Mark a tracked file deleted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Printf("Mark %s deleted? [y/N] ", args[0])
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Marked %s deleted\n", args[0])
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status [DIR]",
	Short: "Compare local files with the index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "status")
		if err != nil {
			return err
		}
		defer a.Close()

		root := ""
		if len(args) == 1 {
			root = args[0]
		}
		statuses, err := a.Status(root)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println("No files found.")
			return nil
		}

		for _, s := range statuses {
			var indicator string
			switch {
			case s.Tracked && s.Deleted:
				indicator = "D "
			case s.Tracked && s.Modified:
				indicator = "TM"
			case s.Tracked && !s.Present:
				indicator = "T-"
			case s.Tracked:
				indicator = "T "
			default:
				indicator = "? "
			}
			fmt.Printf("%s %s\n", indicator, s.RelativePath)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every chunk is still retrievable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "verify")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Verify(ctx)
		if err != nil {
			return err
		}
		broken := 0
		for _, r := range results {
			if r.OK() {
				fmt.Printf("OK      %s (%d chunk(s))\n", r.Path, len(r.Valid))
				continue
			}
			broken++
			fmt.Printf("BROKEN  %s missing chunk(s) %v\n", r.Path, r.Invalid)
		}
		if broken > 0 {
			return fmt.Errorf("%d of %d file(s) have unavailable chunks", broken, len(results))
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(ctx, limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the files index",
}

var indexPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Restore the files index from its remote copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "index-pull")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.PullIndex(ctx, force); err != nil {
			return err
		}
		fmt.Println("Files index restored from the remote copy.")
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// index subcommands
	indexCmd.AddCommand(indexPullCmd)
	indexPullCmd.Flags().Bool("force", false, "Overwrite an existing local index")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringP("out", "o", "", "Output file (one file) or directory (all files)")
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("json", false, "Print the catalog as JSON")
	listCmd.Flags().BoolP("all", "a", false, "Include deleted files")
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
}
