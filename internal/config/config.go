package config

import (
	"bytes"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the fallback when --config is omitted.
	DefaultConfigPath = "config.yml"
	defaultPort       = 8000
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "echo"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0
)

// AppConfig is the startup configuration read from the YAML file. Everything
// else lives in the database as FullConfig and is editable at runtime.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	Paths          PathsConfig    `yaml:"paths"`
	LogRotateSize  *int                  `yaml:"log_rotate_size_mb"`
	LogRotateKeep  *int                  `yaml:"log_rotate_keep"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Timezone       string                `yaml:"timezone"`
	Cluster        ClusterConfig  `yaml:"cluster"`
}

type DatabaseConfig struct {
	// A full DSN (or its url alias) wins over the individual fields below.
	DSN string `yaml:"dsn"`
	URL string `yaml:"url"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	DBName   string `yaml:"db_name"`

	// Driver parameters appended to a generated DSN.
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`

	Params map[string]string `yaml:"params"`
}

type RedisConfig struct {
	// A full URL wins over the individual fields below.
	URL string `yaml:"url"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
	Scheme   string `yaml:"scheme"`

	Params map[string]string `yaml:"params"`
}

type ClusterConfig struct {
	Enable  bool `yaml:"enable"`
	Workers int  `yaml:"workers"`
}

type PathsConfig struct {
	Logs     string `yaml:"logs"`
	Archives string `yaml:"archives"`
}

// configFile mirrors every key the YAML file may carry, including the flat
// db_*/redis_* spellings older deployments used. Pointer fields distinguish
// "absent" from zero values.
type configFile struct {
	Port               int                `yaml:"port"`
	DSN                string             `yaml:"dsn"`
	DatabaseURL        string             `yaml:"database_url"`
	RedisURL           string             `yaml:"redis_url"`
	Database           configFileDatabase `yaml:"database"`
	Redis              configFileRedis    `yaml:"redis"`
	DBHost             string             `yaml:"db_host"`
	DBPort             int                `yaml:"db_port"`
	DBUser             string             `yaml:"db_user"`
	DBPassword         string             `yaml:"db_password"`
	DBName             string             `yaml:"db_name"`
	DBCharset          string             `yaml:"db_charset"`
	DBLoc              string             `yaml:"db_loc"`
	DBParseTime        *bool              `yaml:"db_parse_time"`
	RedisHost          string             `yaml:"redis_host"`
	RedisPort          int                `yaml:"redis_port"`
	RedisUsername      string             `yaml:"redis_username"`
	RedisPassword      string             `yaml:"redis_password"`
	RedisDB            *int               `yaml:"redis_db"`
	RedisTLS           *bool              `yaml:"redis_tls"`
	Env                string             `yaml:"env"`
	AppEnv             string             `yaml:"app_env"`
	Paths              configFilePaths    `yaml:"paths"`
	LogDir             string             `yaml:"log_dir"`
	LogsDir            string             `yaml:"logs_dir"`
	LogRotateSize      *int               `yaml:"log_rotate_size_mb"`
	LogRotateKeep      *int               `yaml:"log_rotate_keep"`
	ArchiveDir         string             `yaml:"archive_dir"`
	ArchivesDir        string             `yaml:"archives_dir"`
	AllowedOrigins     []string           `yaml:"allowed_origins"`
	CORSAllowedOrigins []string           `yaml:"cors_allowed_origins"`
	Timezone           string             `yaml:"timezone"`
	TimeZone           string             `yaml:"time_zone"`
	TZ                 string             `yaml:"tz"`
	Cluster            configFileCluster  `yaml:"cluster"`
	ClusterEnable      *bool              `yaml:"cluster_enable"`
	ClusterWorkers     *int               `yaml:"cluster_workers"`
}

type configFileDatabase struct {
	DSN string `yaml:"dsn"`
	URL string `yaml:"url"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	DBName   string `yaml:"db_name"`

	Charset   string `yaml:"charset"`
	ParseTime *bool  `yaml:"parse_time"`
	Loc       string `yaml:"loc"`

	Params map[string]string `yaml:"params"`
}

type configFileRedis struct {
	URL string `yaml:"url"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
	Scheme   string `yaml:"scheme"`

	Params map[string]string `yaml:"params"`
}

type configFileCluster struct {
	Enable  *bool `yaml:"enable"`
	Workers *int  `yaml:"workers"`
}

type configFilePaths struct {
	Logs     string `yaml:"logs"`
	Archives string `yaml:"archives"`
}

// Load reads and validates the startup config.
func Load(configPath string) (*AppConfig, error) {
	path := firstNonBlank(configPath, DefaultConfigPath)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	file, err := decodeConfigFile(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg := baselineConfig()
	file.apply(&cfg)
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeConfigFile rejects unknown YAML keys so typos fail fast instead of
// silently falling back to defaults.
func decodeConfigFile(content []byte) (configFile, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	var file configFile
	err := decoder.Decode(&file)
	return file, err
}

func baselineConfig() AppConfig {
	cfg := AppConfig{Port: defaultPort, Env: defaultEnv}
	cfg.Database = DatabaseConfig{Password: defaultDBPassword, ParseTime: true}.withDefaults()
	cfg.Redis = RedisConfig{}.withDefaults()
	cfg.refreshDerived()
	return cfg
}

// refreshDerived recomputes the flat DSN and RedisURL fields from the nested
// sections. Call after any mutation of Database or Redis.
func (c *AppConfig) refreshDerived() {
	c.DSN = c.Database.DSNValue()
	c.RedisURL = c.Redis.URLValue()
}

func (c *AppConfig) validate(path string) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d in %q, expected 1-65535", c.Port, path)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d in %q, expected 1-65535", c.Database.Port, path)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", c.Redis.Port, path)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d in %q, expected >= 0", c.Redis.DB, path)
	}
	if c.Cluster.Workers < 0 {
		return fmt.Errorf("invalid cluster.workers %d in %q, expected >= 0", c.Cluster.Workers, path)
	}
	return nil
}

// apply overlays file values onto cfg. Candidate lists run highest
// precedence first: flat legacy keys beat nested sections, and later
// spellings of the same key beat earlier ones.
func (f configFile) apply(cfg *AppConfig) {
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	cfg.Database = f.mergeDatabase(cfg.Database)
	cfg.Redis = f.mergeRedis(cfg.Redis)

	assignString(&cfg.Env, f.AppEnv, f.Env)
	assignString(&cfg.Paths.Logs, f.LogsDir, f.LogDir, f.Paths.Logs)
	assignString(&cfg.Paths.Archives, f.ArchivesDir, f.ArchiveDir, f.Paths.Archives)
	assignString(&cfg.Timezone, f.TZ, f.TimeZone, f.Timezone)

	if n := pickInt(f.LogRotateSize); n != nil {
		cfg.LogRotateSize = n
	}
	if n := pickInt(f.LogRotateKeep); n != nil {
		cfg.LogRotateKeep = n
	}

	// An explicitly empty list clears the origin allowlist, so this keys
	// off presence rather than length.
	if f.AllowedOrigins != nil {
		cfg.AllowedOrigins = trimmedList(f.AllowedOrigins)
	} else if f.CORSAllowedOrigins != nil {
		cfg.AllowedOrigins = trimmedList(f.CORSAllowedOrigins)
	}

	if b := pickBool(f.ClusterEnable, f.Cluster.Enable); b != nil {
		cfg.Cluster.Enable = *b
	}
	if n := pickInt(f.ClusterWorkers, f.Cluster.Workers); n != nil {
		cfg.Cluster.Workers = *n
	}

	cfg.refreshDerived()
	cfg.Paths.Logs = strings.TrimSpace(cfg.Paths.Logs)
	cfg.Paths.Archives = strings.TrimSpace(cfg.Paths.Archives)
	cfg.Env = canonicalEnv(cfg.Env)
}

func (f configFile) mergeDatabase(base DatabaseConfig) DatabaseConfig {
	out := base
	assignString(&out.DSN, f.DatabaseURL, f.DSN, f.Database.URL, f.Database.DSN)
	assignString(&out.Host, f.DBHost, f.Database.Host)
	assignString(&out.User, f.DBUser, f.Database.Username, f.Database.User)
	assignString(&out.Password, f.DBPassword, f.Database.Password)
	assignString(&out.Name, f.DBName, f.Database.DBName, f.Database.Name)
	assignString(&out.Charset, f.DBCharset, f.Database.Charset)
	assignString(&out.Loc, f.DBLoc, f.Database.Loc)
	if port := firstNonZero(f.DBPort, f.Database.Port); port != 0 {
		out.Port = port
	}
	if b := pickBool(f.DBParseTime, f.Database.ParseTime); b != nil {
		out.ParseTime = *b
	}
	if f.Database.Params != nil {
		out.Params = prunedParams(f.Database.Params)
	}
	return out.withDefaults()
}

func (f configFile) mergeRedis(base RedisConfig) RedisConfig {
	out := base
	assignString(&out.URL, f.RedisURL, f.Redis.URL)
	assignString(&out.Host, f.RedisHost, f.Redis.Host)
	assignString(&out.Username, f.RedisUsername, f.Redis.Username)
	assignString(&out.Password, f.RedisPassword, f.Redis.Password)
	assignString(&out.Scheme, f.Redis.Scheme)
	if port := firstNonZero(f.RedisPort, f.Redis.Port); port != 0 {
		out.Port = port
	}
	if n := pickInt(f.RedisDB, f.Redis.DB); n != nil {
		out.DB = *n
	}
	if b := pickBool(f.RedisTLS, f.Redis.TLS); b != nil {
		out.TLS = *b
	}
	if f.Redis.Params != nil {
		out.Params = prunedParams(f.Redis.Params)
	}
	return out.withDefaults()
}

// withDefaults trims every field, resolves the user/username and
// name/db_name aliases, and fills anything still blank from defaults.
func (c DatabaseConfig) withDefaults() DatabaseConfig {
	c.DSN = strings.TrimSpace(c.DSN)
	c.URL = strings.TrimSpace(c.URL)
	c.Host = strings.TrimSpace(c.Host)
	c.User = strings.TrimSpace(c.User)
	c.Username = strings.TrimSpace(c.Username)
	c.Password = strings.TrimSpace(c.Password)
	c.Name = strings.TrimSpace(c.Name)
	c.DBName = strings.TrimSpace(c.DBName)
	c.Charset = strings.TrimSpace(c.Charset)
	c.Loc = strings.TrimSpace(c.Loc)

	if c.User == "" {
		c.User = c.Username
	}
	if c.Name == "" {
		c.Name = c.DBName
	}
	fallbackString(&c.Host, defaultDBHost)
	fallbackString(&c.User, defaultDBUser)
	fallbackString(&c.Password, defaultDBPassword)
	fallbackString(&c.Name, defaultDBName)
	fallbackString(&c.Charset, defaultDBCharset)
	fallbackString(&c.Loc, defaultDBLoc)
	if c.Port == 0 {
		c.Port = defaultDBPort
	}
	if c.Params != nil {
		c.Params = prunedParams(c.Params)
	}
	return c
}

func (c RedisConfig) withDefaults() RedisConfig {
	c.URL = normalizeRedisRawURL(c.URL)
	c.Host = strings.TrimSpace(c.Host)
	c.Username = strings.TrimSpace(c.Username)
	c.Password = strings.TrimSpace(c.Password)
	c.Scheme = strings.ToLower(strings.TrimSpace(c.Scheme))

	if c.Host == "" && c.URL == "" {
		c.Host = defaultRedisHost
	}
	if c.Port == 0 {
		c.Port = defaultRedisPort
	}
	if c.DB < 0 {
		c.DB = defaultRedisDB
	}
	if c.Scheme == "" {
		c.Scheme = redisSchemeFor(c.TLS)
	}
	if c.Params != nil {
		c.Params = prunedParams(c.Params)
	}
	return c
}

// normalizeRedisRawURL prefixes a bare host:port with redis:// and passes
// already-schemed URLs through untouched.
func normalizeRedisRawURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://") {
		return u
	}
	return "redis://" + u
}

func redisSchemeFor(tls bool) string {
	if tls {
		return "rediss"
	}
	return "redis"
}

func urlValues(params map[string]string) neturl.Values {
	values := neturl.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return values
}

// DSNValue returns the configured DSN verbatim when one is set, otherwise
// assembles a go-sql-driver DSN from the individual fields.
func (c DatabaseConfig) DSNValue() string {
	if v := firstNonBlank(c.DSN, c.URL); v != "" {
		return v
	}
	c = c.withDefaults()

	params := urlValues(c.Params)
	defaults := map[string]string{
		"charset":   c.Charset,
		"parseTime": strconv.FormatBool(c.ParseTime),
		"loc":       c.Loc,
	}
	for key, value := range defaults {
		if params.Get(key) == "" {
			params.Set(key, value)
		}
	}

	var b strings.Builder
	if c.User != "" || c.Password != "" {
		b.WriteString(c.User)
		if c.Password != "" {
			b.WriteString(":")
			b.WriteString(c.Password)
		}
		b.WriteString("@")
	}
	fmt.Fprintf(&b, "tcp(%s)/%s", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Name)
	if query := params.Encode(); query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}
	return b.String()
}

// URLValue returns the configured redis URL when one is set, otherwise
// builds one from host, port, credentials and db index.
func (c RedisConfig) URLValue() string {
	if explicit := normalizeRedisRawURL(c.URL); explicit != "" {
		return explicit
	}
	c = c.withDefaults()

	scheme := "redis"
	if c.Scheme == "rediss" {
		scheme = "rediss"
	}
	u := neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + strconv.Itoa(c.DB),
	}
	switch {
	case c.Username != "" && c.Password != "":
		u.User = neturl.UserPassword(c.Username, c.Password)
	case c.Username != "":
		u.User = neturl.User(c.Username)
	case c.Password != "":
		u.User = neturl.UserPassword("", c.Password)
	}
	if len(c.Params) > 0 {
		u.RawQuery = urlValues(c.Params).Encode()
	}
	return u.String()
}

// assignString writes the first non-blank candidate (after trimming) into
// dst and leaves dst untouched when every candidate is blank.
func assignString(dst *string, candidates ...string) {
	if v := firstNonBlank(candidates...); v != "" {
		*dst = v
	}
}

func fallbackString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func firstNonBlank(candidates ...string) string {
	for _, candidate := range candidates {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(candidates ...int) int {
	for _, candidate := range candidates {
		if candidate != 0 {
			return candidate
		}
	}
	return 0
}

func pickBool(candidates ...*bool) *bool {
	for _, candidate := range candidates {
		if candidate != nil {
			v := *candidate
			return &v
		}
	}
	return nil
}

func pickInt(candidates ...*int) *int {
	for _, candidate := range candidates {
		if candidate != nil {
			v := *candidate
			return &v
		}
	}
	return nil
}

// prunedParams copies the map, trimming keys and values and dropping pairs
// that end up blank on either side.
func prunedParams(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	out := make(map[string]string, len(src))
	for key, value := range src {
		k, v := strings.TrimSpace(key), strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func trimmedList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func canonicalEnv(env string) string {
	v := strings.ToLower(strings.TrimSpace(env))
	if v == "" {
		return defaultEnv
	}
	return v
}

func (c *AppConfig) IsDev() bool {
	return canonicalEnv(c.Env) == defaultEnv
}

func (c *AppConfig) LogDir() string {
	var configured string
	if c != nil {
		configured = c.Paths.Logs
	}
	return ResolveRuntimePath(configured, "logs")
}

func (c *AppConfig) ArchiveDir() string {
	var configured string
	if c != nil {
		configured = c.Paths.Archives
	}
	return ResolveRuntimePath(configured, "archives")
}

func intOpt(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (c *AppConfig) LogRotateSizeMB() (int, bool) {
	if c == nil {
		return 0, false
	}
	return intOpt(c.LogRotateSize)
}

func (c *AppConfig) LogRotateKeepCount() (int, bool) {
	if c == nil {
		return 0, false
	}
	return intOpt(c.LogRotateKeep)
}
