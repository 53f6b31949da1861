// Package ratelimit provides configuration loading.
package ratelimit

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadOptions controls config loading.
type LoadOptions struct {
	ConfigPath string
	Args       []string
	Environ    []string
}

// LoadConfig loads configuration from defaults, file, env, and flags, in
// that precedence order.
func LoadConfig(opts LoadOptions) (*Config, error) {
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	flagOverrides, err := parseFlagOverrides(args)
	if err != nil {
		return nil, err
	}
	configPath := opts.ConfigPath
	if flagOverrides.ConfigPath != nil {
		configPath = *flagOverrides.ConfigPath
	}

	cfg := DefaultConfig()
	if configPath != "" {
		fileOverrides, err := loadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		applyOverrides(cfg, fileOverrides)
	}
	envOverrides, err := parseEnvOverrides(environ)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, envOverrides)
	applyOverrides(cfg, flagOverrides.configOverrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		BurstLimit:  5,
		MinuteLimit: 20,
		HourLimit:   300,
		DayLimit:    2000,

		SessionMultiplier:     2,
		EstablishedMultiplier: 4,
		SuspiciousMultiplier:  1,

		SuspicionThreshold: 20,
		PatternWeight:      defaultPatternWeight,
		PatternPenalty:     0.5,
		GraduationRequests: 5,

		SessionTTL:   defaultSessionTTL,
		StoreTimeout: defaultStoreTimeout,
		KeyPrefix:    "rl:",

		EnableHTTP:     true,
		HTTPListenAddr: ":8080",
		SessionCookie:  "rl_session",

		HealthInterval: 100 * time.Millisecond,
		Breaker: CircuitOptions{
			FailureThreshold: 5,
			OpenDuration:     time.Second,
			HalfOpenMaxCalls: 3,
		},
		DegradeThresh: DegradeThresholds{StoreUnhealthyFor: 500 * time.Millisecond},
	}
}

type configOverrides struct {
	BurstLimit            *int64         `json:"BurstLimit"`
	MinuteLimit           *int64         `json:"MinuteLimit"`
	HourLimit             *int64         `json:"HourLimit"`
	DayLimit              *int64         `json:"DayLimit"`
	SessionMultiplier     *float64       `json:"SessionMultiplier"`
	EstablishedMultiplier *float64       `json:"EstablishedMultiplier"`
	SuspiciousMultiplier  *float64       `json:"SuspiciousMultiplier"`
	SuspicionThreshold    *int64         `json:"SuspicionThreshold"`
	PatternWeight         *int64         `json:"PatternWeight"`
	PatternPenalty        *float64       `json:"PatternPenalty"`
	GraduationRequests    *int64         `json:"GraduationRequests"`
	SessionTTL            *durationValue `json:"SessionTTL"`
	StoreTimeout          *durationValue `json:"StoreTimeout"`
	KeyPrefix             *string        `json:"KeyPrefix"`
	ServiceHost           *string        `json:"ServiceHost"`
	RedisAddr             *string        `json:"RedisAddr"`
	RedisPassword         *string        `json:"RedisPassword"`
	RedisDB               *int           `json:"RedisDB"`
	EnableHTTP            *bool          `json:"EnableHTTP"`
	HTTPListenAddr        *string        `json:"HTTPListenAddr"`
	SessionCookie         *string        `json:"SessionCookie"`
}

// durationValue decodes both "500ms" strings and nanosecond numbers.
type durationValue time.Duration

// UnmarshalJSON decodes a duration override.
func (d *durationValue) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty duration")
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return err
		}
		*d = durationValue(parsed)
		return nil
	}
	var nanos int64
	if err := json.Unmarshal(data, &nanos); err != nil {
		return err
	}
	*d = durationValue(nanos)
	return nil
}

func loadConfigFile(path string) (*configOverrides, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	overrides := &configOverrides{}
	if err := json.Unmarshal(data, overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

type flagOverrides struct {
	configOverrides *configOverrides
	ConfigPath      *string
}

func parseFlagOverrides(args []string) (*flagOverrides, error) {
	fs := flag.NewFlagSet("ratelimit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to config file")
	httpAddr := fs.String("http-addr", "", "http listen address")
	redisAddr := fs.String("redis-addr", "", "redis address")
	serviceHost := fs.String("service-host", "", "protected service host")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	overrides := &configOverrides{}
	if *httpAddr != "" {
		overrides.HTTPListenAddr = httpAddr
	}
	if *redisAddr != "" {
		overrides.RedisAddr = redisAddr
	}
	if *serviceHost != "" {
		overrides.ServiceHost = serviceHost
	}
	result := &flagOverrides{configOverrides: overrides}
	if *configPath != "" {
		result.ConfigPath = configPath
	}
	return result, nil
}

func parseEnvOverrides(environ []string) (*configOverrides, error) {
	overrides := &configOverrides{}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "RATELIMIT_") {
			continue
		}
		var err error
		switch key {
		case "RATELIMIT_BURST_LIMIT":
			overrides.BurstLimit, err = parseInt64(value)
		case "RATELIMIT_MINUTE_LIMIT":
			overrides.MinuteLimit, err = parseInt64(value)
		case "RATELIMIT_HOUR_LIMIT":
			overrides.HourLimit, err = parseInt64(value)
		case "RATELIMIT_DAY_LIMIT":
			overrides.DayLimit, err = parseInt64(value)
		case "RATELIMIT_SUSPICION_THRESHOLD":
			overrides.SuspicionThreshold, err = parseInt64(value)
		case "RATELIMIT_SESSION_TTL":
			overrides.SessionTTL, err = parseDuration(value)
		case "RATELIMIT_STORE_TIMEOUT":
			overrides.StoreTimeout, err = parseDuration(value)
		case "RATELIMIT_KEY_PREFIX":
			overrides.KeyPrefix = &value
		case "RATELIMIT_SERVICE_HOST":
			overrides.ServiceHost = &value
		case "RATELIMIT_REDIS_ADDR":
			overrides.RedisAddr = &value
		case "RATELIMIT_REDIS_PASSWORD":
			overrides.RedisPassword = &value
		case "RATELIMIT_HTTP_ADDR":
			overrides.HTTPListenAddr = &value
		}
		if err != nil {
			return nil, err
		}
	}
	return overrides, nil
}

func parseInt64(value string) (*int64, error) {
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseDuration(value string) (*durationValue, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return nil, err
	}
	result := durationValue(parsed)
	return &result, nil
}

func applyOverrides(cfg *Config, overrides *configOverrides) {
	if cfg == nil || overrides == nil {
		return
	}
	if overrides.BurstLimit != nil {
		cfg.BurstLimit = *overrides.BurstLimit
	}
	if overrides.MinuteLimit != nil {
		cfg.MinuteLimit = *overrides.MinuteLimit
	}
	if overrides.HourLimit != nil {
		cfg.HourLimit = *overrides.HourLimit
	}
	if overrides.DayLimit != nil {
		cfg.DayLimit = *overrides.DayLimit
	}
	if overrides.SessionMultiplier != nil {
		cfg.SessionMultiplier = *overrides.SessionMultiplier
	}
	if overrides.EstablishedMultiplier != nil {
		cfg.EstablishedMultiplier = *overrides.EstablishedMultiplier
	}
	if overrides.SuspiciousMultiplier != nil {
		cfg.SuspiciousMultiplier = *overrides.SuspiciousMultiplier
	}
	if overrides.SuspicionThreshold != nil {
		cfg.SuspicionThreshold = *overrides.SuspicionThreshold
	}
	if overrides.PatternWeight != nil {
		cfg.PatternWeight = *overrides.PatternWeight
	}
	if overrides.PatternPenalty != nil {
		cfg.PatternPenalty = *overrides.PatternPenalty
	}
	if overrides.GraduationRequests != nil {
		cfg.GraduationRequests = *overrides.GraduationRequests
	}
	if overrides.SessionTTL != nil {
		cfg.SessionTTL = time.Duration(*overrides.SessionTTL)
	}
	if overrides.StoreTimeout != nil {
		cfg.StoreTimeout = time.Duration(*overrides.StoreTimeout)
	}
	if overrides.KeyPrefix != nil {
		cfg.KeyPrefix = *overrides.KeyPrefix
	}
	if overrides.ServiceHost != nil {
		cfg.ServiceHost = *overrides.ServiceHost
	}
	if overrides.RedisAddr != nil {
		cfg.RedisAddr = *overrides.RedisAddr
	}
	if overrides.RedisPassword != nil {
		cfg.RedisPassword = *overrides.RedisPassword
	}
	if overrides.RedisDB != nil {
		cfg.RedisDB = *overrides.RedisDB
	}
	if overrides.EnableHTTP != nil {
		cfg.EnableHTTP = *overrides.EnableHTTP
	}
	if overrides.HTTPListenAddr != nil {
		cfg.HTTPListenAddr = *overrides.HTTPListenAddr
	}
	if overrides.SessionCookie != nil {
		cfg.SessionCookie = *overrides.SessionCookie
	}
}
