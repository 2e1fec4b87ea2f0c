// Package cli is the captchad command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"captchad/internal/config"
)

// options collects flags that are not part of config.Config.
type options struct {
	configPath string
	envFile    string
	out        io.Writer
	errOut     io.Writer
	// overrides are flag values applied on top of file and environment.
	overrides overrides
}

type overrides struct {
	host              string
	port              int
	predictor         string
	encoder           string
	encoderResource   string
	interpreter       string
	tempDir           string
	staticDir         string
	timeoutSeconds    int
	maxConcurrent     int
	maxWaitSeconds    int
	maxUploadBytes    int64
	allowedTypes      string
	enforceDimensions bool
	corsEnabled       bool
	corsOrigins       string
	logLevel          string
	logFormat         string
}

// Replaceable for tests.
var (
	fnServe   = serve
	fnPredict = predictLocal
	fnEncoder = encoderLocal
)

// buildRootCmd constructs the command tree. Flags land in opts.
func buildRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "captchad",
		Short:         "CAPTCHA recognition relay: HTTP in front of an external model script",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.out)
	root.SetErr(opts.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Optional KEY=VALUE file loaded before reading the environment")
	o := &opts.overrides
	pf.StringVar(&o.host, "host", "", "Listen host")
	pf.IntVar(&o.port, "port", 0, "Listen port (defaults PORT or 3001)")
	pf.StringVar(&o.predictor, "predictor", "", "Prediction script path")
	pf.StringVar(&o.encoder, "encoder", "", "Encoder metadata script path")
	pf.StringVar(&o.encoderResource, "encoder-resource", "", "Serialized label encoder passed to the encoder script")
	pf.StringVar(&o.interpreter, "interpreter", "", "Interpreter for both scripts; empty string runs them directly")
	pf.StringVar(&o.tempDir, "temp-dir", "", "Directory for transient upload files")
	pf.StringVar(&o.staticDir, "static-dir", "", "Serve the built front end from this directory")
	pf.IntVar(&o.timeoutSeconds, "timeout", 0, "Per-script timeout in seconds (0 disables)")
	pf.IntVar(&o.maxConcurrent, "max-concurrent", 0, "Maximum predictions in flight (0 = unlimited)")
	pf.IntVar(&o.maxWaitSeconds, "max-wait", 0, "Seconds a prediction may wait for a slot before 429")
	pf.Int64Var(&o.maxUploadBytes, "max-upload-bytes", 0, "Maximum predict request size in bytes")
	pf.StringVar(&o.allowedTypes, "allowed-types", "", "Comma-separated accepted image types, e.g. image/png,image/jpeg")
	pf.BoolVar(&o.enforceDimensions, "enforce-dimensions", false, "Reject images whose size differs from the model spec")
	pf.BoolVar(&o.corsEnabled, "cors-enabled", true, "Enable CORS")
	pf.StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults CAPTCHAD_LOG_LEVEL or info)")
	pf.StringVar(&o.logFormat, "log-format", "", "Log format: json|console")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP relay",
		Example: "  captchad serve --port 3001 --predictor ./predict_script.py",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return fnServe(cmd.Context(), cfg, log)
		},
	}

	predictCmd := &cobra.Command{
		Use:     "predict <image>",
		Short:   "Run the prediction script on one image without starting a server",
		Example: "  captchad predict ./samples/2b827.png",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return fnPredict(cmd.Context(), cfg, log, args[0], cmd.OutOrStdout())
		},
	}

	encoderCmd := &cobra.Command{
		Use:   "encoder",
		Short: "Print the label encoder metadata without starting a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return fnEncoder(cmd.Context(), cfg, log, cmd.OutOrStdout())
		},
	}

	root.AddCommand(serveCmd, predictCmd, encoderCmd, buildClientCmd())
	return root
}

// loadConfig resolves defaults, file, .env, environment and changed flags,
// in that order, and builds the logger.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Resolve(opts.configPath, opts.envFile)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	applyOverrides(cmd, opts.overrides, &cfg)
	if err := cfg.Normalize(); err != nil {
		return cfg, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(opts.errOut, cfg.LogLevel, cfg.LogFormat), nil
}

func applyOverrides(cmd *cobra.Command, o overrides, cfg *config.Config) {
	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("host", func() { cfg.Host = o.host })
	set("port", func() { cfg.Port = o.port })
	set("predictor", func() { cfg.PredictorScriptPath = o.predictor })
	set("encoder", func() { cfg.EncoderScriptPath = o.encoder })
	set("encoder-resource", func() { cfg.EncoderResourcePath = o.encoderResource })
	set("interpreter", func() { cfg.Interpreter = o.interpreter })
	set("temp-dir", func() { cfg.TempDir = o.tempDir })
	set("static-dir", func() { cfg.StaticDir = o.staticDir })
	set("timeout", func() { cfg.InvokeTimeoutSeconds = o.timeoutSeconds })
	set("max-concurrent", func() { cfg.MaxConcurrent = o.maxConcurrent })
	set("max-wait", func() { cfg.MaxWaitSeconds = o.maxWaitSeconds })
	set("max-upload-bytes", func() { cfg.MaxUploadBytes = o.maxUploadBytes })
	set("allowed-types", func() { cfg.AllowedTypes = splitCSV(o.allowedTypes) })
	set("enforce-dimensions", func() { cfg.EnforceDimensions = o.enforceDimensions })
	set("cors-enabled", func() { cfg.CORS.Enabled = o.corsEnabled })
	set("cors-origins", func() { cfg.CORS.AllowedOrigins = splitCSV(o.corsOrigins) })
	set("log-level", func() { cfg.LogLevel = o.logLevel })
	set("log-format", func() { cfg.LogFormat = o.logFormat })
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code (0 for success, 2 for usage errors, 1 otherwise).
func MainWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &options{out: stdout, errOut: stderr}
	root := buildRootCmd(opts)
	root.SetArgs(args)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "captchad:", err)
		return 1
	}
	return 0
}

// Main returns an exit code for use by cmd/captchad.
func Main() int {
	return MainWithArgs(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
