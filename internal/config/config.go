package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"captchad/internal/common/fsutil"
	"captchad/pkg/types"
)

// Config holds runtime parameters for the relay.
type Config struct {
	Host string `json:"host" yaml:"host" toml:"host" env:"HOST"`
	Port int    `json:"port" yaml:"port" toml:"port" env:"PORT"`

	// External programs and the resource the encoder script reads.
	EncoderResourcePath string `json:"encoder_resource_path" yaml:"encoder_resource_path" toml:"encoder_resource_path" env:"CAPTCHAD_ENCODER_RESOURCE"`
	PredictorScriptPath string `json:"predictor_script_path" yaml:"predictor_script_path" toml:"predictor_script_path" env:"CAPTCHAD_PREDICTOR_SCRIPT"`
	EncoderScriptPath   string `json:"encoder_script_path" yaml:"encoder_script_path" toml:"encoder_script_path" env:"CAPTCHAD_ENCODER_SCRIPT"`
	// Interpreter runs both scripts; empty executes them directly.
	Interpreter string `json:"interpreter" yaml:"interpreter" toml:"interpreter" env:"CAPTCHAD_INTERPRETER"`

	TempDir   string `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir" env:"CAPTCHAD_TEMP_DIR"`
	StaticDir string `json:"static_dir" yaml:"static_dir" toml:"static_dir" env:"CAPTCHAD_STATIC_DIR"`

	// Limits. Zero disables the timeout and the concurrency cap.
	InvokeTimeoutSeconds int   `json:"invoke_timeout_seconds" yaml:"invoke_timeout_seconds" toml:"invoke_timeout_seconds" env:"CAPTCHAD_INVOKE_TIMEOUT_SECONDS"`
	MaxOutputBytes       int   `json:"max_output_bytes" yaml:"max_output_bytes" toml:"max_output_bytes" env:"CAPTCHAD_MAX_OUTPUT_BYTES"`
	MaxUploadBytes       int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes" env:"CAPTCHAD_MAX_UPLOAD_BYTES"`
	MaxConcurrent        int   `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent" env:"CAPTCHAD_MAX_CONCURRENT"`
	MaxWaitSeconds       int   `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds" env:"CAPTCHAD_MAX_WAIT_SECONDS"`

	// Upload validation.
	AllowedTypes      []string `json:"allowed_types" yaml:"allowed_types" toml:"allowed_types" env:"CAPTCHAD_ALLOWED_TYPES" envSeparator:","`
	EnforceDimensions bool     `json:"enforce_dimensions" yaml:"enforce_dimensions" toml:"enforce_dimensions" env:"CAPTCHAD_ENFORCE_DIMENSIONS"`

	Model ModelConfig `json:"model" yaml:"model" toml:"model" envPrefix:"CAPTCHAD_MODEL_"`
	CORS  CORSConfig  `json:"cors" yaml:"cors" toml:"cors" envPrefix:"CAPTCHAD_CORS_"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" env:"CAPTCHAD_LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" env:"CAPTCHAD_LOG_FORMAT"`
}

// ModelConfig describes the external model's input constraints.
type ModelConfig struct {
	ImageWidth    int      `json:"image_width" yaml:"image_width" toml:"image_width" env:"IMAGE_WIDTH"`
	ImageHeight   int      `json:"image_height" yaml:"image_height" toml:"image_height" env:"IMAGE_HEIGHT"`
	TextLength    int      `json:"text_length" yaml:"text_length" toml:"text_length" env:"TEXT_LENGTH"`
	Charset       string   `json:"charset" yaml:"charset" toml:"charset" env:"CHARSET"`
	AcceptedTypes []string `json:"accepted_types" yaml:"accepted_types" toml:"accepted_types" env:"ACCEPTED_TYPES" envSeparator:","`
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods" env:"ALLOWED_METHODS" envSeparator:","`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers" env:"ALLOWED_HEADERS" envSeparator:","`
}

// Default returns the configuration used when nothing else is specified. It
// mirrors the original deployment: port 3001, python scripts next to the
// binary, CORS open to every origin.
func Default() Config {
	spec := types.DefaultModelSpec()
	return Config{
		Port:                 3001,
		EncoderResourcePath:  "captcha_label_encoder.pkl",
		PredictorScriptPath:  "predict_script.py",
		EncoderScriptPath:    "unpickle_script.py",
		Interpreter:          "python",
		TempDir:              filepath.Join(os.TempDir(), "captchad"),
		InvokeTimeoutSeconds: 60,
		MaxOutputBytes:       1 << 20,
		MaxUploadBytes:       10 << 20,
		MaxWaitSeconds:       30,
		Model: ModelConfig{
			ImageWidth:    spec.ImageWidth,
			ImageHeight:   spec.ImageHeight,
			TextLength:    spec.TextLength,
			Charset:       spec.Charset,
			AcceptedTypes: spec.AcceptedTypes,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Normalize trims values and expands '~' in path fields.
func (c *Config) Normalize() error {
	c.Host = strings.TrimSpace(c.Host)
	c.Interpreter = strings.TrimSpace(c.Interpreter)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	for _, p := range []*string{&c.EncoderResourcePath, &c.PredictorScriptPath, &c.EncoderScriptPath, &c.TempDir, &c.StaticDir} {
		v, err := fsutil.ExpandHome(strings.TrimSpace(*p))
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// Validate reports configuration that cannot work. Scripts that do not exist
// yet are not an error: the server starts and reports them per request.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PredictorScriptPath == "" {
		errs = append(errs, errors.New("predictor_script_path is required"))
	}
	if c.EncoderScriptPath == "" {
		errs = append(errs, errors.New("encoder_script_path is required"))
	}
	if c.TempDir == "" {
		errs = append(errs, errors.New("temp_dir is required"))
	}
	if c.InvokeTimeoutSeconds < 0 || c.MaxWaitSeconds < 0 || c.MaxConcurrent < 0 || c.MaxOutputBytes < 0 || c.MaxUploadBytes < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	if c.Model.ImageWidth < 0 || c.Model.ImageHeight < 0 || c.Model.TextLength < 0 {
		errs = append(errs, errors.New("model dimensions must not be negative"))
	}
	if c.EnforceDimensions && (c.Model.ImageWidth == 0 || c.Model.ImageHeight == 0) {
		errs = append(errs, errors.New("enforce_dimensions needs model.image_width and model.image_height"))
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unsupported log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// InvokeTimeout returns the per-invocation timeout (0 = none).
func (c Config) InvokeTimeout() time.Duration {
	return time.Duration(c.InvokeTimeoutSeconds) * time.Second
}

// MaxWait returns how long a prediction may wait for an admission slot.
func (c Config) MaxWait() time.Duration { return time.Duration(c.MaxWaitSeconds) * time.Second }

// ModelSpec converts the model section to its API form.
func (c Config) ModelSpec() types.ModelSpec {
	return types.ModelSpec{
		ImageWidth:    c.Model.ImageWidth,
		ImageHeight:   c.Model.ImageHeight,
		TextLength:    c.Model.TextLength,
		Charset:       c.Model.Charset,
		AcceptedTypes: append([]string(nil), c.Model.AcceptedTypes...),
	}
}
