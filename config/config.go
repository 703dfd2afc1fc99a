package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const defaultPath = "."

// Config is the immutable configuration value object constructed once at
// process start and injected into the services. Business logic never reads
// the environment directly.
type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	Redis *RedisConfig `json:"redis" yaml:"redis"`

	SecretKey struct {
		Access  string `json:"access" yaml:"access"`
		Refresh string `json:"refresh" yaml:"refresh"`
	} `json:"secretKey" yaml:"secretKey"`

	Token    *TokenConfig    `json:"token" yaml:"token"`
	Lockout  *LockoutConfig  `json:"lockout" yaml:"lockout"`
	Password *PasswordConfig `json:"password" yaml:"password"`
	MFA      *MFAConfig      `json:"mfa" yaml:"mfa"`

	SMTP      *SMTPConfig      `json:"smtp" yaml:"smtp"`
	RateLimit *RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
	PubSub    *PubSubConfig    `json:"pubsub" yaml:"pubsub"`

	// Tenants assigns static tenant memberships until a real membership
	// service is wired in. Key is the tenant ID, value the member emails.
	Tenants map[string][]string `json:"tenants" yaml:"tenants"`
}

// Log holds logger settings.
type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// RedisConfig holds connection settings for the rate-limit store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// TokenConfig holds token lifetimes and rotation behavior.
type TokenConfig struct {
	AccessTTL       time.Duration `json:"accessTtl" yaml:"accessTtl"`
	RefreshTTL      time.Duration `json:"refreshTtl" yaml:"refreshTtl"`
	ResetTTL        time.Duration `json:"resetTtl" yaml:"resetTtl"`
	RecoveryTTL     time.Duration `json:"recoveryTtl" yaml:"recoveryTtl"`
	MfaChallengeTTL time.Duration `json:"mfaChallengeTtl" yaml:"mfaChallengeTtl"`

	// RotationGraceWindow bounds how long after a rotation the old token
	// may still be presented without the attempt counting as replay.
	// Absorbs concurrent legitimate retries at the cost of a short
	// detection delay.
	RotationGraceWindow time.Duration `json:"rotationGraceWindow" yaml:"rotationGraceWindow"`

	// CleanupRetention is how long revoked/expired rows are kept before
	// the periodic sweep removes them.
	CleanupRetention time.Duration `json:"cleanupRetention" yaml:"cleanupRetention"`
	CleanupInterval  time.Duration `json:"cleanupInterval" yaml:"cleanupInterval"`
}

// LockoutConfig holds the account lockout thresholds.
type LockoutConfig struct {
	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// PasswordConfig holds the password policy and history settings.
type PasswordConfig struct {
	MinLength        int  `json:"minLength" yaml:"minLength"`
	MaxLength        int  `json:"maxLength" yaml:"maxLength"`
	RequireUppercase bool `json:"requireUppercase" yaml:"requireUppercase"`
	RequireLowercase bool `json:"requireLowercase" yaml:"requireLowercase"`
	RequireNumbers   bool `json:"requireNumbers" yaml:"requireNumbers"`
	RequireSpecial   bool `json:"requireSpecial" yaml:"requireSpecial"`
	BcryptCost       int  `json:"bcryptCost" yaml:"bcryptCost"`

	// HistoryDepth is how many previous passwords reuse checks cover.
	HistoryDepth int `json:"historyDepth" yaml:"historyDepth"`

	// MaxAge is computed into password expiry but not enforced at login.
	MaxAge time.Duration `json:"maxAge" yaml:"maxAge"`
}

// MFAConfig holds TOTP enrollment settings.
type MFAConfig struct {
	Issuer            string `json:"issuer" yaml:"issuer"`
	RecoveryCodeCount int    `json:"recoveryCodeCount" yaml:"recoveryCodeCount"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	From     string `json:"from" yaml:"from"`
}

// RateLimitPolicy is one ttl/limit pair for an endpoint group.
type RateLimitPolicy struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// RateLimitConfig holds per-endpoint request ceilings, enforced per client
// IP before the orchestrator runs. Account lockout is an independent
// second layer.
type RateLimitConfig struct {
	Login    RateLimitPolicy `json:"login" yaml:"login"`
	Register RateLimitPolicy `json:"register" yaml:"register"`
	Reset    RateLimitPolicy `json:"reset" yaml:"reset"`
	Refresh  RateLimitPolicy `json:"refresh" yaml:"refresh"`
	General  RateLimitPolicy `json:"general" yaml:"general"`
}

// PubSubConfig selects the audit event publisher.
type PubSubConfig struct {
	// Provider type: "local" for local HTTP or "google" for Google Pub/Sub.
	Provider string `json:"provider" yaml:"provider"`

	// Google Cloud project ID (for google provider).
	ProjectID string `json:"projectId" yaml:"projectId"`

	// Pub/Sub topic ID (for google provider).
	TopicID string `json:"topicId" yaml:"topicId"`

	// Local HTTP endpoint for development (for local provider).
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`
}

// LoadWithEnv loads .yaml files through koanf with env-var overrides.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}

	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables, aligning each segment with existing YAML
	// keys. Example: SECRETKEY_ACCESS -> secretKey.access
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			return canonicalizeEnvKey(k, existingConfigMap), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

// New loads the service configuration and applies defaults for optional
// sections so injected components never see nil policy blocks.
func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Token == nil {
		cfg.Token = &TokenConfig{}
	}
	if cfg.Token.AccessTTL <= 0 {
		cfg.Token.AccessTTL = 15 * time.Minute
	}
	if cfg.Token.RefreshTTL <= 0 {
		cfg.Token.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Token.ResetTTL <= 0 {
		cfg.Token.ResetTTL = time.Hour
	}
	if cfg.Token.RecoveryTTL <= 0 {
		cfg.Token.RecoveryTTL = time.Hour
	}
	if cfg.Token.MfaChallengeTTL <= 0 {
		cfg.Token.MfaChallengeTTL = 5 * time.Minute
	}
	if cfg.Token.RotationGraceWindow <= 0 {
		cfg.Token.RotationGraceWindow = 10 * time.Second
	}
	if cfg.Token.CleanupRetention <= 0 {
		cfg.Token.CleanupRetention = 30 * 24 * time.Hour
	}
	if cfg.Token.CleanupInterval <= 0 {
		cfg.Token.CleanupInterval = time.Hour
	}

	if cfg.Lockout == nil {
		cfg.Lockout = &LockoutConfig{}
	}
	if cfg.Lockout.MaxAttempts <= 0 {
		cfg.Lockout.MaxAttempts = 5
	}
	if cfg.Lockout.Duration <= 0 {
		cfg.Lockout.Duration = 15 * time.Minute
	}

	if cfg.Password == nil {
		cfg.Password = &PasswordConfig{}
	}
	if cfg.Password.MinLength <= 0 {
		cfg.Password.MinLength = 8
	}
	if cfg.Password.MaxLength <= 0 {
		cfg.Password.MaxLength = 128
	}
	if cfg.Password.HistoryDepth <= 0 {
		cfg.Password.HistoryDepth = 5
	}

	if cfg.MFA == nil {
		cfg.MFA = &MFAConfig{}
	}
	if cfg.MFA.Issuer == "" {
		cfg.MFA.Issuer = "keygate"
	}
	if cfg.MFA.RecoveryCodeCount <= 0 {
		cfg.MFA.RecoveryCodeCount = 10
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
