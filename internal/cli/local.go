package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"captchad/internal/config"
	"captchad/pkg/types"
)

// predictLocal runs one image through the same relay the server uses and
// prints the result as JSON.
func predictLocal(ctx context.Context, cfg config.Config, log zerolog.Logger, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	svc, err := buildRelay(cfg, log)
	if err != nil {
		return err
	}
	img := types.UploadedImage{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}
	res, err := svc.Predict(ctx, img)
	if err != nil {
		return describe(err)
	}
	return writeIndented(out, res)
}

// encoderLocal prints the encoder script's JSON.
func encoderLocal(ctx context.Context, cfg config.Config, log zerolog.Logger, out io.Writer) error {
	svc, err := buildRelay(cfg, log)
	if err != nil {
		return err
	}
	meta, err := svc.EncoderMetadata(ctx)
	if err != nil {
		return describe(err)
	}
	return writeIndented(out, meta)
}

// describe appends the error's details, if any, to its message.
func describe(err error) error {
	var d interface{ Details() any }
	if !errors.As(err, &d) || d.Details() == nil {
		return err
	}
	b, merr := json.Marshal(d.Details())
	if merr != nil {
		return err
	}
	return fmt.Errorf("%w: %s", err, b)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
