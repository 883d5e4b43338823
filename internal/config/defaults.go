package config

const (
	defaultServerURL             = "http://localhost:8080"
	defaultClientDBPath          = "~/.local/share/chartsync/queue.db"
	defaultRequestTimeoutSeconds = 30
	defaultSyncIntervalSeconds   = 30
	defaultItemDelayMillis       = 50
	defaultDebounceMillis        = 2000
	defaultProbeIntervalSeconds  = 10
	defaultProbeTimeoutSeconds   = 5
	defaultBackoffBaseMillis     = 1000
	defaultBackoffMaxSeconds     = 32
	defaultLocalAPIBind          = "127.0.0.1:7420"
	defaultLogLevel              = "info"
	defaultLogFormat             = "text"
	defaultLogMaxSizeMB          = 10
	defaultLogMaxBackups         = 5
	defaultLogMaxAgeDays         = 30
	defaultServerBind            = ":8080"
	defaultServerDBPath          = "chartsync-server.db"
	defaultTokenTTLHours         = 24
	defaultRateLimit             = 600
	defaultRateWindowSeconds     = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Client: Client{
			ServerURL:             defaultServerURL,
			DBPath:                defaultClientDBPath,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Sync: Sync{
			IntervalSeconds:      defaultSyncIntervalSeconds,
			ItemDelayMillis:      defaultItemDelayMillis,
			DebounceMillis:       defaultDebounceMillis,
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
			BackoffBaseMillis:    defaultBackoffBaseMillis,
			BackoffMaxSeconds:    defaultBackoffMaxSeconds,
		},
		LocalAPI: LocalAPI{
			Enabled: true,
			Bind:    defaultLocalAPIBind,
		},
		Logging: Logging{
			Level:      defaultLogLevel,
			Format:     defaultLogFormat,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
			Compress:   true,
		},
		Server: Server{
			Bind:              defaultServerBind,
			DBPath:            defaultServerDBPath,
			TokenTTLHours:     defaultTokenTTLHours,
			RateLimit:         defaultRateLimit,
			RateWindowSeconds: defaultRateWindowSeconds,
		},
	}
}
