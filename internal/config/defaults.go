package config

const (
	defaultDataDir                     = "~/.local/share/csfdoverlay"
	defaultLogDir                      = "~/.local/state/csfdoverlay/logs"
	defaultAPIBind                     = "127.0.0.1:7489"
	defaultCSFDBaseURL                 = "https://www.csfd.cz"
	defaultRequestDelayMs              = 2000
	defaultMaxRetries                  = 5
	defaultCooldownMinMinutes          = 10
	defaultThrottleBackoffCapMinutes   = 60
	defaultTransientBackoffCapMinutes  = 120
	defaultThrottleDefaultSleepSeconds = 60
	defaultRequestTimeoutSeconds       = 30
	defaultFailureJournalName          = "csfd_debug_failures.jsonl"
	defaultBreakerFailures             = 5
	defaultBreakerTimeoutSeconds       = 30
	defaultCacheBackend                = CacheBackendSQLite
	defaultPausePollMs                 = 500
	defaultRequestsPerMinute           = 600
	defaultLogFormat                   = "console"
	defaultLogLevel                    = "info"
)

// Supported cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendBolt   = "bolt"
	CacheBackendJSON   = "json"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		CSFD: CSFD{
			Enabled:                     true,
			BaseURL:                     defaultCSFDBaseURL,
			RequestDelayMs:              defaultRequestDelayMs,
			MaxRetries:                  defaultMaxRetries,
			CooldownMinMinutes:          defaultCooldownMinMinutes,
			ThrottleBackoffCapMinutes:   defaultThrottleBackoffCapMinutes,
			TransientBackoffCapMinutes:  defaultTransientBackoffCapMinutes,
			ThrottleDefaultSleepSeconds: defaultThrottleDefaultSleepSeconds,
			RequestTimeoutSeconds:       defaultRequestTimeoutSeconds,
			FailureJournal:              true,
		},
		Jellyfin: Jellyfin{
			BreakerFailures:       defaultBreakerFailures,
			BreakerTimeoutSeconds: defaultBreakerTimeoutSeconds,
		},
		Cache: Cache{
			Backend: defaultCacheBackend,
		},
		Queue: Queue{
			PausePollMs: defaultPausePollMs,
		},
		Overlay: Overlay{
			InjectionEnabled: true,
		},
		API: API{
			RequestsPerMinute: defaultRequestsPerMinute,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
