package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"captchad/internal/common/fsutil"
	"captchad/internal/invoker"
	"captchad/pkg/types"
)

// Predictor turns an image on disk into a prediction.
type Predictor interface {
	Predict(ctx context.Context, imagePath string) (types.PredictionResult, error)
}

// EncoderSource returns the label-encoder metadata of the model.
type EncoderSource interface {
	EncoderMetadata(ctx context.Context) (json.RawMessage, error)
}

// Runner is the slice of *invoker.Invoker the script predictor needs.
type Runner interface {
	Run(ctx context.Context, c invoker.Cmd) (invoker.Outcome, error)
}

// ScriptConfig locates the external programs.
type ScriptConfig struct {
	// Interpreter runs the scripts, e.g. "python". Empty executes scripts directly.
	Interpreter     string
	PredictorScript string
	EncoderScript   string
	// EncoderResource is the serialized label encoder passed to EncoderScript.
	EncoderResource string
}

// ScriptPredictor implements Predictor and EncoderSource by shelling out.
type ScriptPredictor struct {
	cfg    ScriptConfig
	runner Runner
	log    zerolog.Logger
}

// NewScriptPredictor wires a ScriptPredictor to a Runner, normally an *invoker.Invoker.
func NewScriptPredictor(cfg ScriptConfig, runner Runner, log zerolog.Logger) *ScriptPredictor {
	return &ScriptPredictor{cfg: cfg, runner: runner, log: log}
}

// Predict runs the prediction script with imagePath as its only argument.
func (p *ScriptPredictor) Predict(ctx context.Context, imagePath string) (types.PredictionResult, error) {
	out, err := p.run(ctx, OpPredict, p.cfg.PredictorScript, imagePath)
	if err != nil {
		return types.PredictionResult{}, err
	}
	res, perr := ParsePrediction(out.Stdout)
	if perr != nil {
		e := newError(OpPredict, KindFormat, perr.Error(), out, perr)
		var oe *outputError
		if errors.As(perr, &oe) && oe.shape {
			e.Message = msgUnexpectedShape
		}
		p.log.Error().Err(perr).Str("op", OpPredict).Str("image", imagePath).
			Str("stdout", out.Stdout).Str("stderr", out.Stderr).Msg("prediction output rejected")
		return types.PredictionResult{}, e
	}
	p.log.Debug().Str("image", imagePath).Str("text", res.Text).Float64("confidence", res.Confidence).
		Dur("dur", out.Duration).Msg("prediction parsed")
	return res, nil
}

// EncoderMetadata runs the encoder script against the configured resource.
func (p *ScriptPredictor) EncoderMetadata(ctx context.Context) (json.RawMessage, error) {
	out, err := p.run(ctx, OpEncoder, p.cfg.EncoderScript, p.cfg.EncoderResource)
	if err != nil {
		return nil, err
	}
	meta, perr := ParseEncoderMetadata(out.Stdout)
	if perr != nil {
		p.log.Error().Err(perr).Str("op", OpEncoder).Str("resource", p.cfg.EncoderResource).
			Str("stdout", out.Stdout).Str("stderr", out.Stderr).Msg("encoder output rejected")
		return nil, newError(OpEncoder, KindFormat, perr.Error(), out, perr)
	}
	return meta, nil
}

// Check reports which configured scripts are missing, or nil when both exist.
func (p *ScriptPredictor) Check() error {
	var missing []string
	for _, s := range []string{p.cfg.PredictorScript, p.cfg.EncoderScript} {
		if !fsutil.IsFile(s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("scripts missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// command builds "<interpreter> <script> <arg>" or "<script> <arg>". A bare
// script name is resolved against the working directory, not $PATH.
func (p *ScriptPredictor) command(op, script, arg string) invoker.Cmd {
	if p.cfg.Interpreter == "" {
		if abs, err := filepath.Abs(script); err == nil {
			script = abs
		}
		return invoker.Cmd{Name: op, Path: script, Args: []string{arg}}
	}
	return invoker.Cmd{Name: op, Path: p.cfg.Interpreter, Args: []string{script, arg}}
}

// run executes one script and turns every failure except caller cancellation
// into an *Error.
func (p *ScriptPredictor) run(ctx context.Context, op, script, arg string) (invoker.Outcome, error) {
	if !fsutil.IsFile(script) {
		p.log.Error().Str("op", op).Str("script", script).Msg("script not found")
		return invoker.Outcome{}, newError(op, KindScriptMissing, nil, invoker.Outcome{}, fmt.Errorf("%s: not found", script))
	}
	c := p.command(op, script, arg)
	p.log.Debug().Str("op", op).Str("program", c.Path).Strs("args", c.Args).Msg("invoking script")

	out, err := p.runner.Run(ctx, c)
	switch {
	case err == nil:
	case invoker.IsTimeout(err):
		p.log.Error().Err(err).Str("op", op).Str("script", script).Str("stderr", out.Stderr).Msg("script timed out")
		return out, newError(op, KindTimeout, streamDetail(op, out), out, err)
	case invoker.IsLaunchError(err):
		p.log.Error().Err(err).Str("op", op).Str("program", c.Path).Msg("failed to start script")
		return out, newError(op, KindLaunch, err.Error(), out, err)
	default:
		return out, err
	}

	if out.ExitCode != 0 {
		p.log.Error().Str("op", op).Str("script", script).Int("exit_code", out.ExitCode).
			Str("stdout", out.Stdout).Str("stderr", out.Stderr).Msg("script failed")
		return out, newError(op, KindExit, streamDetail(op, out), out, fmt.Errorf("%s exited with code %d", script, out.ExitCode))
	}
	return out, nil
}

// streamDetail chooses what a failed run reports back to the client. The
// predictor reports the first non-empty stream; the encoder forwards stderr as
// JSON when the script printed a JSON error there.
func streamDetail(op string, out invoker.Outcome) any {
	stderr := strings.TrimSpace(out.Stderr)
	stdout := strings.TrimSpace(out.Stdout)
	if op == OpEncoder {
		if stderr != "" && json.Valid([]byte(stderr)) {
			return json.RawMessage(stderr)
		}
		return map[string]string{"stdout": out.Stdout, "stderr": out.Stderr}
	}
	switch {
	case stderr != "":
		return stderr
	case stdout != "":
		return stdout
	default:
		return "Unknown error during script execution."
	}
}
