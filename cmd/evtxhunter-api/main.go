// Command evtxhunter-api serves a read-only JSON API over the alert store
// produced by a single detection run: it scans its configured rules and
// records once at startup, then exposes GET /alerts and GET /stats behind
// bearer-token authentication until it is signaled to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/evtxhunter/evtxhunter/internal/api"
	"github.com/evtxhunter/evtxhunter/internal/apiauth"
	"github.com/evtxhunter/evtxhunter/internal/detect"
	"github.com/evtxhunter/evtxhunter/internal/events"
	"github.com/evtxhunter/evtxhunter/internal/metrics"
	"github.com/evtxhunter/evtxhunter/internal/recordio"
	"github.com/evtxhunter/evtxhunter/internal/ruleload"
	"github.com/evtxhunter/evtxhunter/internal/sigma"
	"github.com/evtxhunter/evtxhunter/pkg/version"
)

var (
	configFile string
	address    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "evtxhunter-api",
	Short: "evtxhunter-api serves a completed detection run over HTTP",
	Long: `evtxhunter-api loads a rule set, runs it once over a directory of
decoded event records, and serves the resulting alerts read-only over
HTTP until stopped.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (required)")
	rootCmd.PersistentFlags().StringVarP(&address, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = loadAPIConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = defaultConfig()
	}

	if address != "" {
		cfg.Server.Address = address
	}
	cfg.Verbose = verbose

	store, stats, err := runDetectionOnce(cfg)
	if err != nil {
		return fmt.Errorf("run detection: %w", err)
	}
	log.Printf("scanned %d records, %d alerts (%d deduped), %d rules failed",
		stats.RecordsSeen, stats.AlertsEmitted, stats.AlertsDeduped, len(stats.FailedRules))

	auth, limiter, err := buildAuth(cfg)
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}

	metrics.SetBuildInfo(version.Version, version.Commit, version.BuildTime)

	router := api.NewRouter(store, stats, api.Config{
		Auth:           auth,
		RequestLimiter: limiter,
		Verbose:        cfg.Verbose,
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Printf("evtxhunter-api listening on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		log.Printf("server stopped")
	case err := <-errChan:
		cancel()
		return err
	}

	return nil
}

// runDetectionOnce performs the single startup scan this API server serves.
func runDetectionOnce(cfg *Config) (*detect.AlertStore, detect.RunStats, error) {
	aliases := events.NewAliasTable()
	if cfg.Engine.AliasFile != "" {
		var err error
		aliases, err = events.LoadFile(cfg.Engine.AliasFile)
		if err != nil {
			return nil, detect.RunStats{}, fmt.Errorf("load alias file: %w", err)
		}
	}

	var exclusions *ruleload.ExclusionList
	if cfg.Engine.Rules.ExclusionFile != "" {
		var err error
		exclusions, err = ruleload.LoadExclusionFile(cfg.Engine.Rules.ExclusionFile)
		if err != nil {
			return nil, detect.RunStats{}, fmt.Errorf("load exclusion file: %w", err)
		}
	}

	minLevel, err := sigma.ParseLevel(cfg.Engine.Rules.MinLevel)
	if err != nil {
		return nil, detect.RunStats{}, fmt.Errorf("min level: %w", err)
	}

	rules, loadStats, err := ruleload.Load(ruleload.Options{
		Directory:   cfg.Engine.Rules.Directory,
		Exclusions:  exclusions,
		MinLevel:    minLevel,
		EnableNoisy: cfg.Engine.Rules.EnableNoisy,
		Verbose:     cfg.Verbose,
	})
	if err != nil {
		return nil, detect.RunStats{}, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, detect.RunStats{}, fmt.Errorf("zero rules loaded from %s (%d files seen)", cfg.Engine.Rules.Directory, loadStats.FilesSeen)
	}

	records, err := recordio.LoadPath(cfg.Records, aliases)
	if err != nil {
		return nil, detect.RunStats{}, fmt.Errorf("load records: %w", err)
	}

	orch := detect.NewOrchestrator(rules, aliases, detect.Options{
		BatchSize:   cfg.Engine.BatchSize,
		DedupAlerts: true,
	})
	stats, err := orch.Run(context.Background(), records)
	if err != nil {
		return nil, detect.RunStats{}, err
	}

	return orch.Store, stats, nil
}

func buildAuth(cfg *Config) (*apiauth.Authenticator, *apiauth.RateLimiter, error) {
	secret := os.Getenv(cfg.Auth.JWTSecretEnv)
	var jwtSvc *apiauth.JWTService
	if secret != "" {
		jwtSvc = apiauth.NewJWTService([]byte(secret))
	}

	var static *apiauth.StaticAuthenticator
	if len(cfg.Auth.StaticTokens) > 0 {
		static = apiauth.NewStaticAuthenticator(cfg.Auth.StaticTokens)
	}

	if jwtSvc == nil && static == nil {
		return nil, nil, fmt.Errorf("no authentication configured: set %s or auth.static_tokens", cfg.Auth.JWTSecretEnv)
	}

	auth := apiauth.NewAuthenticator(jwtSvc, static)
	limiter := apiauth.NewRateLimiter(cfg.Auth.RateLimitPerMin)
	return auth, limiter, nil
}
