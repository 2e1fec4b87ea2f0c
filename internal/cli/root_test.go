package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"captchad/internal/config"
)

// withCLIStubs swaps the command hooks for the duration of a test.
func withCLIStubs(t *testing.T, set func()) func() {
	t.Helper()
	origServe, origPredict, origEncoder := fnServe, fnPredict, fnEncoder
	set()
	return func() {
		fnServe, fnPredict, fnEncoder = origServe, origPredict, origEncoder
	}
}

func run(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := MainWithArgs(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestMainWithArgs_NoArgs_ShowsUsageAndExit2(t *testing.T) {
	if code, _, _ := run(); code != 2 {
		t.Fatalf("expected exit code 2 for no args, got %d", code)
	}
}

func TestMainWithArgs_UnknownCommand_Exit1(t *testing.T) {
	code, _, errOut := run("wat")
	if code != 1 {
		t.Fatalf("expected exit code 1 for unknown command, got %d", code)
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestServe_FlagsOverrideConfig(t *testing.T) {
	var got config.Config
	cleanup := withCLIStubs(t, func() {
		fnServe = func(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
			got = cfg
			return nil
		}
	})
	defer cleanup()

	d := t.TempDir()
	cfgPath := filepath.Join(d, "captchad.yaml")
	if err := os.WriteFile(cfgPath, []byte("port: 4000\ninterpreter: python3\nmax_concurrent: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, _, errOut := run("serve", "--env-file", "", "--config", cfgPath,
		"--port", "4242", "--predictor", "/srv/predict.py", "--allowed-types", "image/png, image/jpeg", "--log-level", "debug")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if got.Port != 4242 || got.PredictorScriptPath != "/srv/predict.py" || got.LogLevel != "debug" {
		t.Fatalf("flags not applied: %+v", got)
	}
	if len(got.AllowedTypes) != 2 || got.AllowedTypes[1] != "image/jpeg" {
		t.Fatalf("allowed types: %v", got.AllowedTypes)
	}
	// unchanged flags keep file values
	if got.Interpreter != "python3" || got.MaxConcurrent != 2 {
		t.Fatalf("file values lost: %+v", got)
	}
}

func TestServe_InvalidConfigExit1(t *testing.T) {
	called := false
	cleanup := withCLIStubs(t, func() {
		fnServe = func(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
			called = true
			return nil
		}
	})
	defer cleanup()

	code, _, errOut := run("serve", "--env-file", "", "--port", "70000")
	if code != 1 || called {
		t.Fatalf("exit=%d called=%v", code, called)
	}
	if !strings.Contains(errOut, "invalid config") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestPredict_RequiresImageArg(t *testing.T) {
	if code, _, _ := run("predict"); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a unix shell")
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestPredictLocal_RunsScriptAndCleansUp(t *testing.T) {
	d := t.TempDir()
	script := writeScript(t, d, "predict.sh", `test -f "$1" || exit 9; echo '{"text":"2b827","confidence":0.91}'`)
	img := filepath.Join(d, "2b827.png")
	if err := os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nfake"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp := filepath.Join(d, "uploads")

	code, out, errOut := run("predict", img, "--env-file", "", "--interpreter", "/bin/sh",
		"--predictor", script, "--temp-dir", tmp, "--log-level", "error")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, `"text": "2b827"`) {
		t.Fatalf("stdout=%q", out)
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("transient files left behind: %d", len(entries))
	}
}

func TestPredictLocal_ScriptFailureExit1(t *testing.T) {
	d := t.TempDir()
	script := writeScript(t, d, "predict.sh", `echo "model file not found" >&2; exit 1`)
	img := filepath.Join(d, "c.png")
	if err := os.WriteFile(img, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, _, errOut := run("predict", img, "--env-file", "", "--interpreter", "/bin/sh",
		"--predictor", script, "--temp-dir", filepath.Join(d, "tmp"), "--log-level", "error")
	if code != 1 {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(errOut, "Prediction script execution failed.") || !strings.Contains(errOut, "model file not found") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestEncoderLocal_PrintsJSON(t *testing.T) {
	d := t.TempDir()
	script := writeScript(t, d, "unpickle.sh", `echo "{\"resource\":\"$(basename "$1")\",\"classes\":[\"2\",\"b\"]}"`)
	code, out, errOut := run("encoder", "--env-file", "", "--interpreter", "/bin/sh",
		"--encoder", script, "--encoder-resource", filepath.Join(d, "enc.pkl"), "--temp-dir", filepath.Join(d, "tmp"))
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, `"resource": "enc.pkl"`) {
		t.Fatalf("stdout=%q", out)
	}
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "API is running")
	}))
	defer srv.Close()
	code, out, errOut := run("client", "health", "--url", srv.URL)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if strings.TrimSpace(out) != "API is running" {
		t.Fatalf("stdout=%q", out)
	}
}

func TestClientRequiresSubcommand(t *testing.T) {
	if code, _, _ := run("client"); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "json")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level not applied: %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"service":"captchad"`) {
		t.Fatalf("missing service field: %q", buf.String())
	}
	if newLogger(&buf, "bogus", "console").GetLevel() != zerolog.InfoLevel {
		t.Fatalf("bad level should fall back to info")
	}
}
