package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "port: 9000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "root:password@tcp(127.0.0.1:3306)/echo?charset=utf8mb4&loc=Local&parseTime=true", cfg.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.False(t, cfg.Cluster.Enable)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfigFile(t, `
port: 8080
env: Production
db_host: db.internal
db_port: 3307
db_user: echo
db_password: s3cret
db_name: echo_prod
redis:
  host: cache.internal
  port: 6380
  db: 2
  tls: true
allowed_origins:
  - "https://echo.example.com"
  - "   "
timezone: "+08:00"
cluster:
  enable: true
  workers: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "echo:s3cret@tcp(db.internal:3307)/echo_prod?charset=utf8mb4&loc=Local&parseTime=true", cfg.DSN)
	assert.Equal(t, "rediss://cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, []string{"https://echo.example.com"}, cfg.AllowedOrigins, "blank origins are dropped")
	assert.Equal(t, "+08:00", cfg.Timezone)
	assert.True(t, cfg.Cluster.Enable)
	assert.Equal(t, 4, cfg.Cluster.Workers)
}

func TestLoadExplicitConnectionStrings(t *testing.T) {
	path := writeConfigFile(t, `
dsn: "user:pw@tcp(example:3306)/db?parseTime=true"
redis_url: "cache.example:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "user:pw@tcp(example:3306)/db?parseTime=true", cfg.DSN)
	assert.Equal(t, "redis://cache.example:6379", cfg.RedisURL, "scheme is prefixed when missing")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, "bogus_key: 1\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus_key")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"port out of range", "port: 70000\n", "invalid port"},
		{"negative database port", "db_port: -1\n", "invalid database.port"},
		{"redis port out of range", "redis_port: 99999\n", "invalid redis.port"},
		{"negative cluster workers", "cluster:\n  workers: -2\n", "invalid cluster.workers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDSNValue(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		cfg := DatabaseConfig{
			DSN:  "user:pw@tcp(a:3306)/x",
			URL:  "user:pw@tcp(b:3306)/y",
			Host: "c",
		}
		assert.Equal(t, "user:pw@tcp(a:3306)/x", cfg.DSNValue())
	})

	t.Run("url wins over parts", func(t *testing.T) {
		cfg := DatabaseConfig{
			URL:  "user:pw@tcp(b:3306)/y",
			Host: "c",
		}
		assert.Equal(t, "user:pw@tcp(b:3306)/y", cfg.DSNValue())
	})

	t.Run("built from parts", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:      "db.internal",
			Port:      3307,
			User:      "echo",
			Password:  "s3cret",
			Name:      "echo_prod",
			ParseTime: true,
		}
		assert.Equal(t, "echo:s3cret@tcp(db.internal:3307)/echo_prod?charset=utf8mb4&loc=Local&parseTime=true", cfg.DSNValue())
	})

	t.Run("alias fields fill gaps", func(t *testing.T) {
		cfg := DatabaseConfig{
			Username: "alt",
			DBName:   "aliased",
		}
		assert.Equal(t, "alt:password@tcp(127.0.0.1:3306)/aliased?charset=utf8mb4&loc=Local&parseTime=false", cfg.DSNValue())
	})

	t.Run("custom params merge with defaults", func(t *testing.T) {
		cfg := DatabaseConfig{
			ParseTime: true,
			Params:    map[string]string{"timeout": "5s"},
		}
		assert.Equal(t, "root:password@tcp(127.0.0.1:3306)/echo?charset=utf8mb4&loc=Local&parseTime=true&timeout=5s", cfg.DSNValue())
	})
}

func TestURLValue(t *testing.T) {
	t.Run("raw url wins", func(t *testing.T) {
		cfg := RedisConfig{URL: "cache.example:6379", Host: "ignored"}
		assert.Equal(t, "redis://cache.example:6379", cfg.URLValue())
	})

	t.Run("built from parts", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.internal", Port: 6380, DB: 1}
		assert.Equal(t, "redis://cache.internal:6380/1", cfg.URLValue())
	})

	t.Run("tls selects rediss", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.internal", TLS: true}
		assert.Equal(t, "rediss://cache.internal:6379/0", cfg.URLValue())
	})

	t.Run("unsupported scheme falls back", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.internal", Scheme: "http"}
		assert.Equal(t, "redis://cache.internal:6379/0", cfg.URLValue())
	})

	t.Run("credentials", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.internal", Username: "echo", Password: "pw"}
		assert.Equal(t, "redis://echo:pw@cache.internal:6379/0", cfg.URLValue())

		cfg = RedisConfig{Host: "cache.internal", Password: "pw"}
		assert.Equal(t, "redis://:pw@cache.internal:6379/0", cfg.URLValue())
	})

	t.Run("query params", func(t *testing.T) {
		cfg := RedisConfig{Host: "cache.internal", Params: map[string]string{"protocol": "3"}}
		assert.Equal(t, "redis://cache.internal:6379/0?protocol=3", cfg.URLValue())
	})
}

func TestNormalizeRedisRawURL(t *testing.T) {
	assert.Equal(t, "", normalizeRedisRawURL("   "))
	assert.Equal(t, "redis://host:6379", normalizeRedisRawURL("redis://host:6379"))
	assert.Equal(t, "rediss://host:6379", normalizeRedisRawURL("rediss://host:6379"))
	assert.Equal(t, "redis://host:6379", normalizeRedisRawURL("host:6379"))
}

func TestResolveRuntimePath(t *testing.T) {
	assert.Equal(t, "/var/log/echo", ResolveRuntimePath("/var/log/echo/", "logs"))
	assert.Equal(t, filepath.Join(ExecutableDir(), "logs"), ResolveRuntimePath("", "logs"))
	assert.Equal(t, filepath.Join(ExecutableDir(), "rel", "dir"), ResolveRuntimePath("rel/dir", "logs"))
	assert.Equal(t, ExecutableDir(), ResolveRuntimePath("", ""))
}

func TestRuntimePathAccessors(t *testing.T) {
	cfg := &AppConfig{Paths: PathsConfig{Logs: "/data/logs", Archives: "/data/archives"}}
	assert.Equal(t, "/data/logs", cfg.LogDir())
	assert.Equal(t, "/data/archives", cfg.ArchiveDir())

	var nilCfg *AppConfig
	assert.Equal(t, filepath.Join(ExecutableDir(), "logs"), nilCfg.LogDir())
	assert.Equal(t, filepath.Join(ExecutableDir(), "archives"), nilCfg.ArchiveDir())
}

func TestLogRotateAccessors(t *testing.T) {
	cfg := &AppConfig{}
	_, ok := cfg.LogRotateSizeMB()
	assert.False(t, ok)
	_, ok = cfg.LogRotateKeepCount()
	assert.False(t, ok)

	size := 128
	keep := 3
	cfg.LogRotateSize = &size
	cfg.LogRotateKeep = &keep

	got, ok := cfg.LogRotateSizeMB()
	assert.True(t, ok)
	assert.Equal(t, 128, got)
	got, ok = cfg.LogRotateKeepCount()
	assert.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestDefaultFullConfig(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("GEMINI_API_KEY", "gm-key")

	cfg := DefaultFullConfig()

	assert.Equal(t, "ECHO", cfg.SEO.Title)
	assert.Equal(t, "https://api.day.app", cfg.BarkOptions.ServerURL)
	assert.True(t, cfg.BarkOptions.EnableIngest)
	assert.Equal(t, 7, cfg.ArchiveOptions.KeepCount)
	assert.True(t, cfg.AnalyzeOptions.Enable)
	assert.Equal(t, 90, cfg.AnalyzeOptions.CleanDays)
	assert.Equal(t, "gh-token", cfg.ThirdPartyServiceIntegration.GitHubToken)

	require.Len(t, cfg.AI.Providers, 1)
	provider := cfg.AI.Providers[0]
	assert.Equal(t, "gemini", provider.ID)
	assert.Equal(t, "Gemini", provider.Type)
	assert.Equal(t, "gm-key", provider.APIKey)
	assert.Equal(t, "gemini-2.0-flash-exp", provider.DefaultModel)
	assert.True(t, provider.Enabled)
	assert.True(t, cfg.AI.EnableAnalysis)
}

func TestBarkOptionsLegacyKeys(t *testing.T) {
	opts := DefaultFullConfig().BarkOptions
	require.NoError(t, json.Unmarshal([]byte(`{"key":"abc","serverUrl":"https://bark.example","enableIngest":false}`), &opts))

	assert.Equal(t, "abc", opts.Key)
	assert.Equal(t, "https://bark.example", opts.ServerURL)
	assert.False(t, opts.EnableIngest)
	assert.False(t, opts.Enable, "untouched fields keep their previous value")
}

func TestS3OptionsLegacyKeys(t *testing.T) {
	var opts S3Options
	require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"access_key":"AK","secret_key":"SK","force_path_style":true,"customDomain":"cdn.example.com"}`), &opts))

	assert.True(t, opts.Enable)
	assert.Equal(t, "AK", opts.AccessKeyID)
	assert.Equal(t, "SK", opts.SecretAccessKey)
	assert.True(t, opts.PathStyleAccess)
	assert.Equal(t, "cdn.example.com", opts.CustomDomain)
}

func TestArchiveOptionsLegacyKeys(t *testing.T) {
	var opts ArchiveOptions
	require.NoError(t, json.Unmarshal([]byte(`{"auto_archive":true,"max_keep":3,"path_template":"a/{filename}"}`), &opts))

	assert.True(t, opts.Enable)
	assert.Equal(t, 3, opts.KeepCount)
	assert.Equal(t, "a/{filename}", opts.Path)
}

func TestAnalyzeOptionsLegacyKeys(t *testing.T) {
	var opts AnalyzeOptions
	require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"keep_days":30}`), &opts))

	assert.True(t, opts.Enable)
	assert.Equal(t, 30, opts.CleanDays)
}

func TestThirdPartyLegacyKeys(t *testing.T) {
	var opts ThirdPartyServiceIntegration
	require.NoError(t, json.Unmarshal([]byte(`{"gh_token":" tok "}`), &opts))
	assert.Equal(t, "tok", opts.GitHubToken)
}

func TestAIConfigAssignmentForms(t *testing.T) {
	t.Run("enable_summary alias", func(t *testing.T) {
		var cfg AIConfig
		require.NoError(t, json.Unmarshal([]byte(`{"enable_summary":true}`), &cfg))
		assert.True(t, cfg.EnableAnalysis)
	})

	t.Run("legacy model string keeps provider", func(t *testing.T) {
		cfg := AIConfig{AnalysisModel: &AIModelAssignment{ProviderID: "openai", Model: "old"}}
		require.NoError(t, json.Unmarshal([]byte(`{"analysis_model":"gpt-4o"}`), &cfg))
		require.NotNil(t, cfg.AnalysisModel)
		assert.Equal(t, "openai", cfg.AnalysisModel.ProviderID)
		assert.Equal(t, "gpt-4o", cfg.AnalysisModel.Model)
	})

	t.Run("null clears the assignment", func(t *testing.T) {
		cfg := AIConfig{AnalysisModel: &AIModelAssignment{ProviderID: "openai"}}
		require.NoError(t, json.Unmarshal([]byte(`{"analysis_model":null}`), &cfg))
		assert.Nil(t, cfg.AnalysisModel)
	})

	t.Run("empty string clears the assignment", func(t *testing.T) {
		cfg := AIConfig{AnalysisModel: &AIModelAssignment{ProviderID: "openai"}}
		require.NoError(t, json.Unmarshal([]byte(`{"analysis_model":""}`), &cfg))
		assert.Nil(t, cfg.AnalysisModel)
	})

	t.Run("object with camel provider id", func(t *testing.T) {
		var cfg AIConfig
		require.NoError(t, json.Unmarshal([]byte(`{"analysis_model":{"providerId":"gemini","model":"flash"}}`), &cfg))
		require.NotNil(t, cfg.AnalysisModel)
		assert.Equal(t, "gemini", cfg.AnalysisModel.ProviderID)
		assert.Equal(t, "flash", cfg.AnalysisModel.Model)
	})

	t.Run("empty object clears the assignment", func(t *testing.T) {
		var cfg AIConfig
		require.NoError(t, json.Unmarshal([]byte(`{"analysis_model":{}}`), &cfg))
		assert.Nil(t, cfg.AnalysisModel)
	})

	t.Run("summary_model alias", func(t *testing.T) {
		var cfg AIConfig
		require.NoError(t, json.Unmarshal([]byte(`{"summary_model":{"provider_id":"gemini","model":"flash"}}`), &cfg))
		require.NotNil(t, cfg.AnalysisModel)
		assert.Equal(t, "gemini", cfg.AnalysisModel.ProviderID)
	})
}
