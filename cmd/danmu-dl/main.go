package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wintopic/iDanmu-Speed/internal/app"
	"github.com/wintopic/iDanmu-Speed/internal/config"
	"github.com/wintopic/iDanmu-Speed/internal/download"
	"github.com/wintopic/iDanmu-Speed/internal/logging"
	"github.com/wintopic/iDanmu-Speed/internal/model"
)

var (
	inputFlag       string
	configFlag      string
	baseURLFlag     string
	tokenFlag       string
	outputFlag      string
	formatFlag      string
	namingRuleFlag  string
	concurrencyFlag int
	retriesFlag     int
	retryDelayFlag  int
	throttleFlag    int
	timeoutFlag     int
	localAPIFlag    string
	metricsAddrFlag string
	debugFlag       bool

	exitCode = model.ExitOK

	rootCmd = &cobra.Command{
		Use:           "danmu-dl",
		Short:         "Batch downloader for danmu comment files",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDownload,
	}
)

func init() {
	def := config.DefaultSettings()
	f := rootCmd.Flags()

	f.StringVarP(&inputFlag, "input", "i", "", "Path to tasks file (.json/.jsonl/.csv)")
	f.StringVarP(&configFlag, "config", "c", "", "Path to JSON config file")
	f.StringVar(&baseURLFlag, "base-url", def.BaseURL, "API base URL")
	f.StringVar(&tokenFlag, "token", def.Token, "Optional API token")
	f.StringVarP(&outputFlag, "output", "o", def.Output, "Output directory")
	f.StringVarP(&formatFlag, "format", "f", def.Format, "Output format (json or xml)")
	f.StringVar(&namingRuleFlag, "naming-rule", def.NamingRule, "Output naming rule template")
	f.IntVarP(&concurrencyFlag, "concurrency", "n", def.Concurrency, "Number of workers")
	f.IntVar(&retriesFlag, "retries", def.Retries, "Retry count")
	f.IntVar(&retryDelayFlag, "retry-delay-ms", def.RetryDelayMs, "Retry base delay in ms")
	f.IntVar(&throttleFlag, "throttle-ms", def.ThrottleMs, "Task start throttle in ms")
	f.IntVar(&timeoutFlag, "timeout-ms", def.TimeoutMs, "Request timeout in ms")
	f.StringVar(&localAPIFlag, "local-api", def.LocalAPI, "Check the local API when using localhost (auto, on, off)")
	f.StringVar(&metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	f.BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	if err := rootCmd.MarkFlagRequired("input"); err != nil {
		panic(err)
	}
}

// loadSettings reads --config and applies the flags the user set.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings := config.DefaultSettings()
	if configFlag != "" {
		var err error
		settings, err = config.Load(configFlag)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	flags := cmd.Flags()
	apply := func(name string, fn func()) {
		if flags.Changed(name) || configFlag == "" {
			fn()
		}
	}
	apply("base-url", func() { settings.BaseURL = baseURLFlag })
	apply("token", func() { settings.Token = tokenFlag })
	apply("output", func() { settings.Output = outputFlag })
	apply("format", func() { settings.Format = formatFlag })
	apply("naming-rule", func() { settings.NamingRule = namingRuleFlag })
	apply("concurrency", func() { settings.Concurrency = concurrencyFlag })
	apply("retries", func() { settings.Retries = retriesFlag })
	apply("retry-delay-ms", func() { settings.RetryDelayMs = retryDelayFlag })
	apply("throttle-ms", func() { settings.ThrottleMs = throttleFlag })
	apply("timeout-ms", func() { settings.TimeoutMs = timeoutFlag })
	apply("local-api", func() { settings.LocalAPI = localAPIFlag })

	return settings, nil
}

func runDownload(cmd *cobra.Command, _ []string) error {
	logging.Setup(os.Stderr, debugFlag || logging.DebugFromEnv())

	settings, err := loadSettings(cmd)
	if err != nil {
		exitCode = model.ExitSetup
		return err
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, finishing in-flight tasks...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if metricsAddrFlag != "" {
		srv := serveMetrics(metricsAddrFlag)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	code, err := app.Execute(ctx, app.Request{
		Settings:   settings,
		InputPath:  inputFlag,
		OnProgress: printEvent,
	})
	exitCode = code
	return err
}

func printEvent(event download.ProgressEvent) {
	fmt.Println(event.Message)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		if exitCode == model.ExitOK {
			exitCode = model.ExitSetup
		}
	}
	os.Exit(exitCode)
}
