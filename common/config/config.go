package config

import (
	"strings"
	"time"

	"github.com/fuchsia74/grok2api/common/env"
)

var (
	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", "3000"))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)

	// SQLDSN selects the backing store. Empty means a local SQLite file at SQLitePath.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath is the SQLite database location used when SQL_DSN is unset.
	SQLitePath = env.String("SQLITE_PATH", "grok2api.db")

	// GrokBaseURL is the upstream web origin all chat/video calls are issued against.
	GrokBaseURL = strings.TrimRight(env.String("GROK_BASE_URL", "https://grok.com"), "/")
	// ImagineWSURL is the duplex socket endpoint for the image generation protocol.
	ImagineWSURL = env.String("IMAGINE_WS_URL", "wss://grok.com/api/imagine/ws")
	// AssetBaseURL hosts generated media referenced by relative upstream URLs.
	AssetBaseURL = strings.TrimRight(env.String("ASSET_BASE_URL", "https://assets.grok.com"), "/")

	// RetryTimes bounds credential switches per outward request.
	RetryTimes = env.Int("RETRY_TIMES", 3)

	// ShowThinking surfaces model reasoning wrapped in <think> markers when true.
	ShowThinking = env.Bool("SHOW_THINKING", true)

	// CatalogBaseURL and CatalogAPIKey configure the remote model catalog listing.
	CatalogBaseURL = strings.TrimRight(env.String("CATALOG_BASE_URL", "https://api.x.ai/v1"), "/")
	CatalogAPIKey  = strings.TrimSpace(env.String("CATALOG_API_KEY", ""))
	// CatalogTTL is how long a synced remote model list stays fresh.
	CatalogTTL = time.Duration(env.Int("CATALOG_TTL_SECONDS", 300)) * time.Second

	// ImagineTimeout bounds one duplex image session before it resolves with partial results.
	ImagineTimeout = time.Duration(env.Int("IMAGINE_TIMEOUT_SECONDS", 120)) * time.Second

	// RelayTimeout bounds upstream HTTP requests (seconds) before aborting them. 0 disables.
	RelayTimeout = env.Int("RELAY_TIMEOUT", 0)

	// AdminKey guards the credential management API.
	AdminKey = strings.TrimSpace(env.String("ADMIN_KEY", ""))

	// APIKeys lists outward bearer keys accepted on /v1 endpoints. Empty disables the check.
	APIKeys = func() []string {
		raw := strings.TrimSpace(env.String("API_KEYS", ""))
		if raw == "" {
			return nil
		}
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}()

	// CredentialImportBatchSize chunks bulk credential imports to bound single store writes.
	CredentialImportBatchSize = env.Int("CREDENTIAL_IMPORT_BATCH_SIZE", 50)

	// EnablePrometheusMetrics exposes /metrics when true.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)

	// LogDir writes logs to disk in addition to stdout when non-empty.
	LogDir = strings.TrimSpace(env.String("LOG_DIR", ""))
	// OnlyOneLogFile merges daily logs into a single file when LogDir is set.
	OnlyOneLogFile = env.Bool("ONLY_ONE_LOG_FILE", false)
)
