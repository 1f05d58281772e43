package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/accesscore/internal/security/secretbox"
)

// MinSecretLen es el largo mínimo del secreto HMAC.
const MinSecretLen = 32

type Config struct {
	App struct {
		Env     string `yaml:"app_env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		Migrate bool `yaml:"migrate"` // aplica migraciones al arrancar serve
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	Cache struct {
		Kind   string `yaml:"kind"` // memory | redis
		Prefix string `yaml:"prefix"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Secret        string `yaml:"secret"`
		Issuer        string `yaml:"issuer"`
		AccessTTL     string `yaml:"access_ttl"`
		RefreshTTL    string `yaml:"refresh_ttl"`
		RotateRefresh *bool  `yaml:"rotate_refresh"`
	} `yaml:"jwt"`

	Auth struct {
		DefaultRole string `yaml:"default_role"`
	} `yaml:"auth"`

	Lockout struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Duration    string `yaml:"duration"`
		AttemptTTL  string `yaml:"attempt_ttl"`
		Backend     string `yaml:"backend"` // memory | redis
	} `yaml:"lockout"`

	Rate struct {
		Enabled        *bool    `yaml:"enabled"`
		Window         string   `yaml:"window"`
		AuthLimit      int      `yaml:"auth_limit"`
		DefaultLimit   int      `yaml:"default_limit"`
		AuthPrefixes   []string `yaml:"auth_prefixes"`
		BypassPrefixes []string `yaml:"bypass_prefixes"`
		TrustForwarded *bool    `yaml:"trust_forwarded"`
		Backend        string   `yaml:"backend"` // memory | redis
	} `yaml:"rate"`

	Revocation struct {
		PurgeInterval string `yaml:"purge_interval"`
		CacheTTL      string `yaml:"cache_ttl"`
	} `yaml:"revocation"`

	Security struct {
		PasswordPolicy struct {
			MinLength     int   `yaml:"min_length"`
			MaxLength     int   `yaml:"max_length"`
			RequireUpper  *bool `yaml:"require_upper"`
			RequireLower  *bool `yaml:"require_lower"`
			RequireDigit  *bool `yaml:"require_digit"`
			RequireSymbol *bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
		PasswordBlacklistPath string `yaml:"password_blacklist_path"`
	} `yaml:"security"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Notify struct {
		LockoutEmail bool `yaml:"lockout_email"`
	} `yaml:"notify"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML (path vacío = solo defaults + env), aplica defaults,
// overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.openSecrets(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar ruta de blacklist (si relativa) respecto al directorio del YAML
	if p := strings.TrimSpace(c.Security.PasswordBlacklistPath); p != "" && path != "" {
		if !filepath.IsAbs(p) {
			c.Security.PasswordBlacklistPath = filepath.Clean(filepath.Join(filepath.Dir(path), p))
		}
	}
	return &c, nil
}

func boolPtr(b bool) *bool { return &b }

// openSecrets descifra los valores "enc:..." con SECRETBOX_MASTER_KEY. Sin
// valores cifrados la clave no hace falta.
func (c *Config) openSecrets() error {
	fields := map[string]*string{
		"jwt.secret":     &c.JWT.Secret,
		"storage.dsn":    &c.Storage.DSN,
		"redis.password": &c.Redis.Password,
		"smtp.password":  &c.SMTP.Password,
	}
	var box *secretbox.Box
	for name, p := range fields {
		if !secretbox.IsSealed(*p) {
			continue
		}
		if box == nil {
			b, err := secretbox.FromEnv()
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			box = b
		}
		v, err := box.Open(*p)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*p = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "accesscore"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "accesscore:"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "5m"
	}

	// JWT
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "accesscore"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.JWT.RotateRefresh == nil {
		c.JWT.RotateRefresh = boolPtr(true)
	}
	if c.Auth.DefaultRole == "" {
		c.Auth.DefaultRole = "USER"
	}

	// Lockout
	if c.Lockout.MaxAttempts == 0 {
		c.Lockout.MaxAttempts = 5
	}
	if c.Lockout.Duration == "" {
		c.Lockout.Duration = "15m"
	}
	if c.Lockout.AttemptTTL == "" {
		c.Lockout.AttemptTTL = "24h"
	}
	if c.Lockout.Backend == "" {
		c.Lockout.Backend = "memory"
	}

	// Rate
	if c.Rate.Enabled == nil {
		c.Rate.Enabled = boolPtr(true)
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.AuthLimit == 0 {
		c.Rate.AuthLimit = 5
	}
	if c.Rate.DefaultLimit == 0 {
		c.Rate.DefaultLimit = 60
	}
	if len(c.Rate.AuthPrefixes) == 0 {
		c.Rate.AuthPrefixes = []string{"/v1/auth/"}
	}
	if c.Rate.BypassPrefixes == nil {
		c.Rate.BypassPrefixes = []string{"/static/", "/public/"}
	}
	if c.Rate.TrustForwarded == nil {
		c.Rate.TrustForwarded = boolPtr(true)
	}
	if c.Rate.Backend == "" {
		c.Rate.Backend = "memory"
	}

	// Revocation
	if c.Revocation.PurgeInterval == "" {
		c.Revocation.PurgeInterval = "10m"
	}
	if c.Revocation.CacheTTL == "" {
		c.Revocation.CacheTTL = "5m"
	}

	// Password policy default: 8..128 con las cuatro clases
	pp := &c.Security.PasswordPolicy
	if pp.MinLength == 0 {
		pp.MinLength = 8
	}
	if pp.MaxLength == 0 {
		pp.MaxLength = 128
	}
	for _, b := range []**bool{&pp.RequireUpper, &pp.RequireLower, &pp.RequireDigit, &pp.RequireSymbol} {
		if *b == nil {
			*b = boolPtr(true)
		}
	}

	// SMTP defaults
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE"); ok {
		c.Storage.Migrate = v
	}

	// REDIS / CACHE
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_PREFIX"); ok {
		c.Cache.Prefix = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvBool("JWT_ROTATE_REFRESH"); ok {
		c.JWT.RotateRefresh = boolPtr(v)
	}
	if v, ok := getEnvStr("AUTH_DEFAULT_ROLE"); ok {
		c.Auth.DefaultRole = v
	}

	// LOCKOUT
	if v, ok := getEnvInt("LOCKOUT_MAX_ATTEMPTS"); ok {
		c.Lockout.MaxAttempts = v
	}
	if v, ok := getEnvStr("LOCKOUT_DURATION"); ok {
		c.Lockout.Duration = v
	}
	if v, ok := getEnvStr("LOCKOUT_ATTEMPT_TTL"); ok {
		c.Lockout.AttemptTTL = v
	}
	if v, ok := getEnvStr("LOCKOUT_BACKEND"); ok {
		c.Lockout.Backend = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = boolPtr(v)
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_AUTH_LIMIT"); ok {
		c.Rate.AuthLimit = v
	}
	if v, ok := getEnvInt("RATE_DEFAULT_LIMIT"); ok {
		c.Rate.DefaultLimit = v
	}
	if v, ok := getEnvCSV("RATE_AUTH_PREFIXES"); ok && len(v) > 0 {
		c.Rate.AuthPrefixes = v
	}
	if v, ok := getEnvCSV("RATE_BYPASS_PREFIXES"); ok {
		c.Rate.BypassPrefixes = v
	}
	if v, ok := getEnvBool("RATE_TRUST_FORWARDED"); ok {
		c.Rate.TrustForwarded = boolPtr(v)
	}
	if v, ok := getEnvStr("RATE_BACKEND"); ok {
		c.Rate.Backend = v
	}

	// REVOCATION
	if v, ok := getEnvStr("REVOCATION_PURGE_INTERVAL"); ok {
		c.Revocation.PurgeInterval = v
	}

	// SECURITY
	if v, ok := getEnvInt("SECURITY_PASSWORD_POLICY_MIN_LENGTH"); ok {
		c.Security.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvStr("SECURITY_PASSWORD_BLACKLIST_PATH"); ok {
		c.Security.PasswordBlacklistPath = strings.TrimSpace(v)
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v) // auto|starttls|ssl|none
	}
	if v, ok := getEnvBool("NOTIFY_LOCKOUT_EMAIL"); ok {
		c.Notify.LockoutEmail = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate chequea los valores críticos. Retorna todos los problemas juntos.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.Secret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("jwt.secret must be at least %d characters", MinSecretLen))
	}

	durations := map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"jwt.access_ttl":                     c.JWT.AccessTTL,
		"jwt.refresh_ttl":                    c.JWT.RefreshTTL,
		"lockout.duration":                   c.Lockout.Duration,
		"lockout.attempt_ttl":                c.Lockout.AttemptTTL,
		"rate.window":                        c.Rate.Window,
		"revocation.purge_interval":          c.Revocation.PurgeInterval,
		"revocation.cache_ttl":               c.Revocation.CacheTTL,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if d <= 0 && name != "lockout.attempt_ttl" {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Lockout.MaxAttempts < 1 {
		errs = append(errs, errors.New("lockout.max_attempts must be >= 1"))
	}
	if c.Rate.AuthLimit < 1 || c.Rate.DefaultLimit < 1 {
		errs = append(errs, errors.New("rate limits must be >= 1"))
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}

	needsRedis := false
	for name, v := range map[string]string{"cache.kind": c.Cache.Kind, "lockout.backend": c.Lockout.Backend, "rate.backend": c.Rate.Backend} {
		switch v {
		case "memory":
		case "redis":
			needsRedis = true
		default:
			errs = append(errs, fmt.Errorf("%s: unknown %q", name, v))
		}
	}
	if needsRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required by a redis backend"))
	}

	if c.Notify.LockoutEmail && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("notify.lockout_email requires smtp.host and smtp.from"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// dur parsea una duración ya validada.
func dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) AccessTTL() time.Duration       { return dur(c.JWT.AccessTTL) }
func (c *Config) RefreshTTL() time.Duration      { return dur(c.JWT.RefreshTTL) }
func (c *Config) LockoutDuration() time.Duration { return dur(c.Lockout.Duration) }
func (c *Config) AttemptTTL() time.Duration      { return dur(c.Lockout.AttemptTTL) }
func (c *Config) RateWindow() time.Duration      { return dur(c.Rate.Window) }
func (c *Config) PurgeInterval() time.Duration   { return dur(c.Revocation.PurgeInterval) }
func (c *Config) CacheTTL() time.Duration        { return dur(c.Cache.Memory.DefaultTTL) }
func (c *Config) ReadTimeout() time.Duration     { return dur(c.Server.ReadTimeout) }
func (c *Config) WriteTimeout() time.Duration    { return dur(c.Server.WriteTimeout) }
func (c *Config) ShutdownTimeout() time.Duration { return dur(c.Server.ShutdownTimeout) }
func (c *Config) ConnMaxLifetime() time.Duration { return dur(c.Storage.Postgres.ConnMaxLifetime) }

func (c *Config) RevocationCacheTTL() time.Duration { return dur(c.Revocation.CacheTTL) }
