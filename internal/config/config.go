package config

// Config is the companion's settings, kept separate from the business data
// store so that clearing or rewriting settings can never corrupt clinic data.
type Config struct {
	Server  ServerConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Storage StorageConfig
	Log     LogConfig
}

// ServerConfig describes the local API the UI talks to.
type ServerConfig struct {
	Port int
}

// RemoteConfig holds the coordinates of the main clinic server.
type RemoteConfig struct {
	ServerURL  string
	APIKey     string
	BranchID   string
	BranchName string
}

type SyncConfig struct {
	AutoInterval string // Go duration string, e.g. "1m"
	UploadBatch  int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Remote: RemoteConfig{},
		Sync: SyncConfig{
			AutoInterval: "1m",
			UploadBatch:  50,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/vetsync/config.json, then applies VETSYNC_* environment
// overrides. Remote coordinates may legitimately be empty: the companion
// supports a pre-configuration mode where they are entered through the UI
// and saved later.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
