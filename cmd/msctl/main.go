package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"material-search/internal/search"
	"material-search/internal/startup"
)

const (
	defaultServer     = "http://localhost:8085"
	minPasswordLength = 6
	// bcrypt ignores input past this length.
	maxPasswordLength = 72
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "msctl",
		Short: "Control a material-search server",
		Long: `msctl starts scans, reports index status and runs text searches
against a running material-search server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("MSCTL_SERVER")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().String("server", server, "Server address (env MSCTL_SERVER)")
	rootCmd.PersistentFlags().String("username", startup.DefaultUsername, "Login name when the server requires login")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newStatusCmd(),
		newScanCmd(),
		newSearchCmd(),
		newHashPasswordCmd(),
	)
	return rootCmd
}

// clientFor builds a logged-in client from the persistent flags. The
// password is only read from MSCTL_PASSWORD so it stays out of shell history.
func clientFor(cmd *cobra.Command) (*apiClient, error) {
	server, _ := cmd.Flags().GetString("server")
	username, _ := cmd.Flags().GetString("username")

	c, err := newAPIClient(server, username, os.Getenv("MSCTL_PASSWORD"))
	if err != nil {
		return nil, err
	}
	if err := c.login(cmd.Context()); err != nil {
		return nil, err
	}
	return c, nil
}

func writeOutput(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			return writeOutput(cmd, info, func(w io.Writer) {
				fmt.Fprintf(w, "msctl %s (commit %s, %s %s/%s)\n", info.Version, info.Commit, info.GoVersion, info.OS, info.Arch)
			})
		},
	}
}

// statusResponse mirrors the server's /api/status body.
type statusResponse struct {
	Images           int64     `json:"total_images"`
	Videos           int64     `json:"total_videos"`
	VideoFrames      int64     `json:"total_video_frames"`
	Scanning         bool      `json:"scanning"`
	ScannedFiles     int64     `json:"scanned_files"`
	ScanStarted      time.Time `json:"scan_started,omitzero"`
	LastScan         time.Time `json:"last_scan,omitzero"`
	FileWatchEnabled bool      `json:"file_watch_enabled"`
	FileWatchRunning bool      `json:"file_watch_running"`
	QueueLength      int       `json:"queue_length"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show library counts and scan state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var st statusResponse
			if err := c.call(cmd.Context(), "GET", "/api/status", nil, &st); err != nil {
				return err
			}
			return writeOutput(cmd, st, func(w io.Writer) { printStatus(w, st) })
		},
	}
}

func printStatus(w io.Writer, st statusResponse) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Images:\t%d\n", st.Images)
	fmt.Fprintf(tw, "Videos:\t%d\n", st.Videos)
	fmt.Fprintf(tw, "Video frames:\t%d\n", st.VideoFrames)
	if st.Scanning {
		fmt.Fprintf(tw, "Scan:\trunning, %d files since %s\n", st.ScannedFiles, st.ScanStarted.Format(time.DateTime))
	} else {
		fmt.Fprintf(tw, "Scan:\tidle\n")
	}
	if !st.LastScan.IsZero() {
		fmt.Fprintf(tw, "Last scan:\t%s\n", st.LastScan.Format(time.DateTime))
	}
	switch {
	case !st.FileWatchEnabled:
		fmt.Fprintf(tw, "File watch:\tdisabled\n")
	case st.FileWatchRunning:
		fmt.Fprintf(tw, "File watch:\trunning, %d queued\n", st.QueueLength)
	default:
		fmt.Fprintf(tw, "File watch:\tnot running\n")
	}
	_ = tw.Flush()
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Start a full scan of the asset paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var resp map[string]string
			if err := c.call(cmd.Context(), "POST", "/api/scan", nil, &resp); err != nil {
				return err
			}
			return writeOutput(cmd, resp, func(w io.Writer) { fmt.Fprintln(w, resp["status"]) })
		},
	}
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search indexed images or videos by text",
		Long: `Search ranks indexed assets against a text prompt.

Examples:
  msctl search "a dog on a beach"
  msctl search --video --top 3 "fireworks"
  msctl search --negative "people" "mountain lake"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video, _ := cmd.Flags().GetBool("video")
			top, _ := cmd.Flags().GetInt("top")
			negative, _ := cmd.Flags().GetString("negative")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			path, _ := cmd.Flags().GetString("path")

			req := search.NewRequest()
			req.Type = search.TextToImage
			if video {
				req.Type = search.TextToVideo
			}
			req.TopN = top
			req.Positive = args[0]
			req.Negative = negative
			req.PositiveThreshold = threshold
			req.Path = path

			c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			if video {
				var results []search.VideoResult
				if err := c.call(cmd.Context(), "POST", "/api/match", req, &results); err != nil {
					return err
				}
				return writeOutput(cmd, results, func(w io.Writer) { printVideos(w, results) })
			}
			var results []search.ImageResult
			if err := c.call(cmd.Context(), "POST", "/api/match", req, &results); err != nil {
				return err
			}
			return writeOutput(cmd, results, func(w io.Writer) { printImages(w, results) })
		},
	}
	cmd.Flags().Bool("video", false, "Search videos instead of images")
	cmd.Flags().Int("top", 10, "Number of results")
	cmd.Flags().String("negative", "", "Prompt to rank against")
	cmd.Flags().Float64("threshold", 30, "Minimum positive score in percent")
	cmd.Flags().String("path", "", "Only match paths containing this text")
	return cmd
}

func printImages(w io.Writer, results []search.ImageResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tID\tPATH")
	for _, r := range results {
		fmt.Fprintf(tw, "%.2f\t%d\t%s\n", r.Score, r.ID, r.Path)
	}
	_ = tw.Flush()
}

func printVideos(w io.Writer, results []search.VideoResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tSEGMENT\tPATH")
	for _, r := range results {
		fmt.Fprintf(tw, "%.2f\t%ds-%ds\t%s\n", r.Score, r.StartTime, r.EndTime, r.Path)
	}
	_ = tw.Flush()
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Generate a PASSWORD_HASH value",
		Long: `Prompts for a password twice and prints its bcrypt hash. Set the
result as PASSWORD_HASH to enable login on the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return errors.New("hash-password needs an interactive terminal")
			}

			fmt.Fprint(os.Stderr, "New Password: ")
			password, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			fmt.Fprint(os.Stderr, "Confirm Password: ")
			confirm, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			hash, err := hashPassword(password, confirm, bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// hashPassword validates a confirmed password and returns its bcrypt hash.
func hashPassword(password, confirm []byte, cost int) (string, error) {
	if !bytes.Equal(password, confirm) {
		return "", errors.New("passwords do not match")
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return "", fmt.Errorf("password must not exceed %d characters", maxPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
