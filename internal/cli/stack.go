package cli

import (
	"github.com/rs/zerolog"

	"captchad/internal/config"
	"captchad/internal/inference"
	"captchad/internal/invoker"
	"captchad/internal/relay"
	"captchad/internal/upload"
)

// buildRelay wires invoker, script predictor, upload store and relay from cfg.
func buildRelay(cfg config.Config, log zerolog.Logger) (*relay.Relay, error) {
	iv := invoker.New(invoker.Options{
		Timeout:        cfg.InvokeTimeout(),
		MaxOutputBytes: cfg.MaxOutputBytes,
	})
	iv.SetPublisher(invoker.LogPublisher{Logger: log.With().Str("component", "invoker").Logger()})

	pred := inference.NewScriptPredictor(inference.ScriptConfig{
		Interpreter:     cfg.Interpreter,
		PredictorScript: cfg.PredictorScriptPath,
		EncoderScript:   cfg.EncoderScriptPath,
		EncoderResource: cfg.EncoderResourcePath,
	}, iv, log.With().Str("component", "inference").Logger())

	store, err := upload.NewStore(cfg.TempDir)
	if err != nil {
		return nil, err
	}
	rc := relay.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxWait:       cfg.MaxWait(),
		Rules: upload.Rules{
			AllowedTypes:      cfg.AllowedTypes,
			EnforceDimensions: cfg.EnforceDimensions,
			Width:             cfg.Model.ImageWidth,
			Height:            cfg.Model.ImageHeight,
		},
		Spec: cfg.ModelSpec(),
	}
	return relay.New(rc, pred, pred, store, log.With().Str("component", "relay").Logger()), nil
}
