package config

const (
	defaultConfigPath       = "~/.config/bonksticks/config.toml"
	defaultCacheDirFallback = "~/.cache/bonksticks/maps"
	defaultLogDir           = "~/.local/share/bonksticks/logs"
	defaultAPIBind          = "127.0.0.1:5901"
	defaultCatalogBaseURL   = "https://api.beatsaver.com"
	defaultCatalogUserAgent = "NeosVR Map Converter/1.0.0"
	defaultCatalogTimeout   = 30
	defaultCatalogPageSize  = 20
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 14
	defaultHistoryEnabled   = true
	defaultCacheMaxEntries  = 0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Catalog: Catalog{
			BaseURL:        defaultCatalogBaseURL,
			UserAgent:      defaultCatalogUserAgent,
			TimeoutSeconds: defaultCatalogTimeout,
			PageSize:       defaultCatalogPageSize,
		},
		Cache: Cache{
			MaxEntries: defaultCacheMaxEntries,
		},
		History: History{
			Enabled: defaultHistoryEnabled,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
