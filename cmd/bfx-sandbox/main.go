package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/bfx/internal/sandbox"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bfx-sandbox",
	Short: "Local stand-in for the Bitfinex v2 REST API",
	Long: `bfx-sandbox serves a small subset of the Bitfinex v2 API on localhost.

Authenticated requests are checked the way the exchange checks them: the
HMAC-SHA384 signature must match, nonces must increase per key, and each
key is rate limited. Point the CLI at it with

  bfx --public-url http://localhost:8089/v2 --auth-url http://localhost:8089/v2 auth wallets`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, _ := zap.NewProduction()
		defer logger.Sync() //nolint:errcheck
		return run(cmd.Context(), logger)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ./sandbox.yaml or configs/sandbox.yaml)")
	rootCmd.Flags().Int("port", 8089, "listen port")
	_ = viper.BindPFlag("sandbox.port", rootCmd.Flags().Lookup("port"))
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sandbox")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("sandbox.port", 8089)
	viper.SetDefault("sandbox.rate_limit_rps", 10)
	viper.SetDefault("sandbox.api_key", "sandbox-key")
	viper.SetDefault("sandbox.api_secret", "sandbox-secret")
	viper.SetDefault("sandbox.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("sandbox.shutdown_timeout", "15s")
	viper.SetDefault("sandbox.max_recorded", sandbox.DefaultMaxRecorded)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func run(ctx context.Context, logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	if err := loadConfig(); err != nil {
		return err
	}
	port := viper.GetInt("sandbox.port")
	rps := viper.GetFloat64("sandbox.rate_limit_rps")
	key := viper.GetString("sandbox.api_key")
	if key == "" || viper.GetString("sandbox.api_secret") == "" {
		return errors.New("sandbox.api_key and sandbox.api_secret must be set")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gin.SetMode(gin.ReleaseMode)
	x := sandbox.New(sandbox.Config{
		Keys:           map[string]string{key: viper.GetString("sandbox.api_secret")},
		RateLimitRPS:   rps,
		RateLimitBurst: int(rps * 2),
		MaxRecorded:    viper.GetInt("sandbox.max_recorded"),
		Registry:       reg,
	}, logger)

	router := newRouter(x, viper.GetStringSlice("sandbox.cors_origins"), logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sandbox listening",
			zap.Int("port", port),
			zap.String("api_key", key),
			zap.Float64("rate_limit_rps", rps),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down sandbox...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("sandbox.shutdown_timeout"))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("sandbox stopped", zap.Int("recorded_requests", len(x.Requests())))
	return nil
}

// newRouter wraps the sandbox routes with CORS for browser tooling and
// request logging.
func newRouter(x *sandbox.Exchange, corsOrigins []string, logger *zap.Logger) *gin.Engine {
	return x.Handler(
		cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "bfx-nonce", "bfx-apikey", "bfx-signature"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID"},
			AllowCredentials: !containsWildcard(corsOrigins),
			MaxAge:           12 * time.Hour,
		}),
		requestLogger(logger),
	)
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.Writer.Header().Get("X-Request-ID")),
		)
	}
}
