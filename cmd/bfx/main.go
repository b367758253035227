package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/bfx/internal/credentials"
	"github.com/jmerrifield20/bfx/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", client.KindOf(err), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bfx",
	Short: "Bitfinex command-line client",
	Long: `bfx talks to the Bitfinex v2 REST API.

Public market data needs no credentials. Trading, funding and account
commands read API_KEY and API_SECRET from the environment or from a
.bfx_cli.env file, and prompt for them on first use.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".bfx"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("BFX")
		viper.AutomaticEnv()
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if cfgFile != "" || !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}

		if verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
		}
		switch o := viper.GetString("output"); o {
		case "table", "json":
		default:
			return fmt.Errorf("--output must be table or json, got %q", o)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.bfx/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every request attempt to stderr")
	pf.StringP("output", "o", "table", "output format: table or json")
	pf.Duration("timeout", client.DefaultAttemptTimeout, "timeout for a single HTTP attempt")
	pf.Int("max-attempts", client.DefaultMaxAttempts, "attempts per authenticated call, including the first")
	pf.Duration("retry-interval", client.DefaultRetryInterval, "minimum spacing between attempts")
	pf.String("public-url", client.DefaultPublicBaseURL, "public API base URL")
	pf.String("auth-url", client.DefaultAuthBaseURL, "authenticated API base URL")

	for key, flag := range map[string]string{
		"output":         "output",
		"timeout":        "timeout",
		"max_attempts":   "max-attempts",
		"retry_interval": "retry-interval",
		"public_url":     "public-url",
		"auth_url":       "auth-url",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.SetVersionTemplate(versionLine("{{.Version}}"))
	rootCmd.AddCommand(publicCmd, tradingCmd, fundingCmd, authCmd, versionCmd)
}

// ── client construction ─────────────────────────────────────────────────────

func clientOptions() []client.Option {
	return []client.Option{
		client.WithPublicBaseURL(viper.GetString("public_url")),
		client.WithAuthBaseURL(viper.GetString("auth_url")),
		client.WithAttemptTimeout(viper.GetDuration("timeout")),
		client.WithMaxAttempts(viper.GetInt("max_attempts")),
		client.WithRetryInterval(viper.GetDuration("retry_interval")),
		client.WithLogger(logger),
		client.WithUserAgent("bfx-cli/" + version),
	}
}

// newPublicClient never looks for credentials.
func newPublicClient() (*client.Client, error) {
	return client.New(client.Credentials{}, clientOptions()...)
}

func newAuthClient() (*client.Client, error) {
	creds, source, err := credentials.Default().Resolve()
	if err != nil {
		return nil, err
	}
	logger.Debug("credentials resolved", zap.String("source", source))
	return client.New(creds, clientOptions()...)
}

// ── output ──────────────────────────────────────────────────────────────────

// render prints v as indented JSON, or as a table drawn by table.
func render(cmd *cobra.Command, v any, table func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if viper.GetString("output") == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	table(w)
	return w.Flush()
}

func row(w io.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = cell(c)
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}

func cell(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	case string:
		if t == "" {
			return "-"
		}
		return t
	case bool:
		if t {
			return "yes"
		}
		return "no"
	}
	return fmt.Sprint(v)
}

// ── history flags ───────────────────────────────────────────────────────────

type historyFlags struct {
	limit      int
	start, end string
}

func (h *historyFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&h.limit, "limit", 0, "maximum number of records")
	cmd.Flags().StringVar(&h.start, "start", "", "earliest time, RFC 3339")
	cmd.Flags().StringVar(&h.end, "end", "", "latest time, RFC 3339")
}

func (h *historyFlags) params() (client.HistoryParams, error) {
	p := client.HistoryParams{Limit: h.limit}
	var err error
	if p.Start, err = parseTime("start", h.start); err != nil {
		return p, err
	}
	if p.End, err = parseTime("end", h.end); err != nil {
		return p, err
	}
	return p, nil
}

func parseTime(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s must be RFC 3339, e.g. 2024-01-02T15:04:05Z", client.ErrInvalidArgument, name)
	}
	return t, nil
}

// ── version ─────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionLine(version))
	},
}

func versionLine(v string) string {
	return fmt.Sprintf("bfx %s (client %s)\n", v, client.Version)
}
