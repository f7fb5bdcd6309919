package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/models"
	"go-canvas-download/internal/paths"
)

// Default values for configuration
const (
	DefaultSavePath            = "downloads"
	DefaultPathPattern         = "{host}/course_{courseId}"
	DefaultLogApiRequests      = false
	DefaultAPIClientTimeoutSec = 30 // seconds
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultConfigFilePath      = "config.toml"
	DefaultEnvFilePath         = ".env"
	EnvPrefix                  = "CANVAS"

	// Download specific defaults
	DefaultConfigDownloadConcurrency      = 3
	DefaultConfigDownloadConfirmedOnly    = false
	DefaultConfigDownloadSkipConfirmation = false
)

// ErrInvalidConfig wraps every validation failure returned by Initialize.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// setViperDefaults configures Viper with the application's default values.
// Every key must have a default so AutomaticEnv can see it during Unmarshal.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault("pathpattern", DefaultPathPattern)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("apitoken", "")
	v.SetDefault("sessioncookie", "")
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("logapirequests", DefaultLogApiRequests)

	v.SetDefault("download.concurrency", DefaultConfigDownloadConcurrency)
	v.SetDefault("download.confirmedonly", DefaultConfigDownloadConfirmedOnly)
	v.SetDefault("download.skipconfirmation", DefaultConfigDownloadSkipConfirmation)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath      *string
	EnvFilePath         *string // --env-file
	LogLevel            *string // --log-level
	LogFormat           *string // --log-format
	LogApiRequests      *bool   // --log-api
	SavePath            *string // --save-path
	PathPattern         *string // --path-pattern
	APIClientTimeoutSec *int    // --api-timeout
	APIToken            *string // --token
	SessionCookie       *string // --cookie

	Download *CliDownloadFlags
}

type CliDownloadFlags struct {
	Concurrency      *int  // -c
	ConfirmedOnly    *bool // --confirmed-only
	SkipConfirmation *bool // --yes
}

// Defaults returns the configuration used when neither file nor flags set a value.
func Defaults() models.Config {
	return models.Config{
		SavePath:            DefaultSavePath,
		PathPattern:         DefaultPathPattern,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
		APIClientTimeoutSec: DefaultAPIClientTimeoutSec,
		LogApiRequests:      DefaultLogApiRequests,
		Download: models.DownloadConfig{
			Concurrency:      DefaultConfigDownloadConcurrency,
			ConfirmedOnly:    DefaultConfigDownloadConfirmedOnly,
			SkipConfirmation: DefaultConfigDownloadSkipConfirmation,
		},
	}
}

// Initialize loads configuration based on defaults, config file, environment and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	finalCfg := Defaults()

	loadEnvFile(flags.EnvFilePath)

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil && *flags.ConfigFilePath != "" {
		actualConfigFilePath = *flags.ConfigFilePath
		log.Debugf("[Initialize] Using config file path from CLI flag: %s", actualConfigFilePath)
	}
	v.SetConfigFile(actualConfigFilePath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Debugf("[Initialize] Config file '%s' not found. Using defaults and CLI flags only.", actualConfigFilePath)
		} else {
			log.Warnf("[Initialize] Error reading config file '%s': %v. Using defaults and CLI flags only.", actualConfigFilePath, err)
		}
	} else {
		log.Infof("[Initialize] Using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&finalCfg, flags)

	if err := Validate(finalCfg); err != nil {
		return models.Config{}, nil, err
	}

	var finalTransport http.RoundTripper = http.DefaultTransport
	if finalCfg.LogApiRequests {
		logFilePath := "api.log"
		if _, statErr := os.Stat(finalCfg.SavePath); statErr == nil {
			logFilePath = filepath.Join(finalCfg.SavePath, logFilePath)
		} else {
			log.Warnf("SavePath '%s' not found, saving api.log to current directory.", finalCfg.SavePath)
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			finalTransport = loggingTransport
		}
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, finalTransport, nil
}

// loadEnvFile exports CANVAS_* variables from a dotenv file so credentials can
// live outside config.toml. Variables already set in the environment win.
// A missing default file is not an error; a missing explicit one is logged.
func loadEnvFile(path *string) {
	envPath := DefaultEnvFilePath
	explicit := path != nil && *path != ""
	if explicit {
		envPath = *path
	}
	if err := godotenv.Load(envPath); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warnf("Could not load env file %s", envPath)
		}
		return
	}
	log.Debugf("[Initialize] Loaded environment from %s", envPath)
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	if flags.SavePath != nil {
		log.Debugf("[Initialize] Overriding SavePath from flag: '%s'", *flags.SavePath)
		cfg.SavePath = *flags.SavePath
	}
	if flags.PathPattern != nil {
		cfg.PathPattern = *flags.PathPattern
	}
	if flags.LogApiRequests != nil {
		cfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.APIClientTimeoutSec != nil && *flags.APIClientTimeoutSec >= 0 {
		cfg.APIClientTimeoutSec = *flags.APIClientTimeoutSec
	}
	if flags.APIToken != nil && *flags.APIToken != "" {
		log.Debug("[Initialize] Overriding APIToken from flag.")
		cfg.APIToken = *flags.APIToken
	}
	if flags.SessionCookie != nil && *flags.SessionCookie != "" {
		log.Debug("[Initialize] Overriding SessionCookie from flag.")
		cfg.SessionCookie = *flags.SessionCookie
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}

	if flags.Download != nil {
		if flags.Download.Concurrency != nil && *flags.Download.Concurrency > 0 {
			cfg.Download.Concurrency = *flags.Download.Concurrency
			log.Debugf("[Initialize] CLI Override: Download.Concurrency = %d", cfg.Download.Concurrency)
		}
		if flags.Download.ConfirmedOnly != nil {
			cfg.Download.ConfirmedOnly = *flags.Download.ConfirmedOnly
		}
		if flags.Download.SkipConfirmation != nil {
			cfg.Download.SkipConfirmation = *flags.Download.SkipConfirmation
		}
	}
}

// Validate checks field constraints and that PathPattern only uses known tags.
func Validate(cfg models.Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(cfg.PathPattern) != "" {
		if _, err := paths.GeneratePath(cfg.PathPattern, nil); err != nil {
			return fmt.Errorf("%w: PathPattern: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// WriteSample writes cfg as TOML to path, refusing to overwrite an existing file.
// Credentials are never written.
func WriteSample(path string, cfg models.Config) error {
	cfg.APIToken = ""
	cfg.SessionCookie = ""

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
