package config

const (
	defaultOutputDir         = "~/Downloads/uttervault"
	defaultStateDir          = "~/.local/share/uttervault"
	defaultLogDir            = "~/.local/share/uttervault/logs"
	defaultWorkspaceDir      = "~/.cache/uttervault/transcode"
	defaultAPIBind           = "127.0.0.1:7491"
	defaultStoreDriver       = "postgres"
	defaultSQLitePath        = "~/.local/share/uttervault/utterances.db"
	defaultBatchSize         = 100
	defaultPageSize          = 25
	defaultStorageBackend    = "http"
	defaultStorageBucket     = "recordings"
	defaultStorageTimeout    = 60
	defaultFFmpegBinary      = "ffmpeg"
	defaultExportConcurrency = 8
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Store: Store{
			Driver:     defaultStoreDriver,
			SQLitePath: defaultSQLitePath,
			BatchSize:  defaultBatchSize,
			PageSize:   defaultPageSize,
		},
		Storage: Storage{
			Backend:        defaultStorageBackend,
			Bucket:         defaultStorageBucket,
			TimeoutSeconds: defaultStorageTimeout,
		},
		Transcode: Transcode{
			Enabled:      true,
			FFmpegBinary: defaultFFmpegBinary,
			WorkspaceDir: defaultWorkspaceDir,
		},
		Export: Export{
			Concurrency: defaultExportConcurrency,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
