package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"uttervault/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The store points at a SQLite mirror and blobs are read from a local
// directory so tests never reach the network.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "exports")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Driver = "sqlite"
	cfgVal.Store.SQLitePath = filepath.Join(base, "state", "utterances.db")
	cfgVal.Storage.Backend = "fs"
	cfgVal.Storage.Dir = filepath.Join(base, "blobs")
	cfgVal.Transcode.WorkspaceDir = filepath.Join(base, "transcode")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTranscodeDisabled turns off audio conversion on the test config.
func WithTranscodeDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcode.Enabled = false
	}
}

// WithConfig applies fn to the generated config after the temp paths are set.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// WithStubbedBinaries writes stub executables that exit successfully for the
// provided names and prepends them to PATH. If names is empty, ffmpeg is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		for _, name := range names {
			writeStub(b, name, "#!/bin/sh\nexit 0\n")
		}
	}
}

// WithStubScript writes a stub executable with the given shell body and
// prepends its directory to PATH.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		writeStub(b, name, "#!/bin/sh\n"+body+"\n")
	}
}

// FakeFFmpegScript is a shell body that writes a minimal WAV file to the last
// argument, the way ffmpeg writes its output.
const FakeFFmpegScript = `for last; do :; done
printf 'RIFF\044\000\000\000WAVEfmt ' > "$last"`

func writeStub(b *configBuilder, name, script string) {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}

	b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WriteConfigFile serializes cfg as TOML next to its temp directories and
// returns the file path, for tests that drive commands through --config.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
