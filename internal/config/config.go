package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Assessment AssessmentConfig `yaml:"assessment" mapstructure:"assessment"`
	Asbuilt    AsbuiltConfig    `yaml:"asbuilt" mapstructure:"asbuilt"`
	Loader     LoaderConfig     `yaml:"loader" mapstructure:"loader"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the geocoding client.
type GeocodeConfig struct {
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateRPS      float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	CacheEnabled bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// ScheduleConfig configures the collection schedule lookup.
type ScheduleConfig struct {
	// RecycleReferenceMonday anchors the A/B recycle-week alternation. It must
	// be the Monday (YYYY-MM-DD) of a known A-week.
	RecycleReferenceMonday string `yaml:"recycle_reference_monday" mapstructure:"recycle_reference_monday"`
}

// AssessmentConfig configures the damage-assessment builder.
type AssessmentConfig struct {
	ReportDir string `yaml:"report_dir" mapstructure:"report_dir"`
}

// AsbuiltConfig configures the as-built record locator.
type AsbuiltConfig struct {
	// ArchiveURL is either a local directory path or an ftp:// URL.
	ArchiveURL string `yaml:"archive_url" mapstructure:"archive_url"`
	IDField    string `yaml:"id_field" mapstructure:"id_field"`
	StagingDir string `yaml:"staging_dir" mapstructure:"staging_dir"`
}

// LoaderConfig configures PostGIS bulk layer loads.
type LoaderConfig struct {
	Schema      string `yaml:"schema" mapstructure:"schema"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GISCLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gis-cli.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("geocode.rate_rps", 50)
	v.SetDefault("geocode.cache_enabled", true)
	v.SetDefault("geocode.cache_ttl_days", 30)
	v.SetDefault("schedule.recycle_reference_monday", "2024-01-01")
	v.SetDefault("asbuilt.id_field", "HYPERLINK")
	v.SetDefault("asbuilt.staging_dir", "/tmp/asbuilts")
	v.SetDefault("loader.schema", "gis")
	v.SetDefault("loader.batch_size", 50000)
	v.SetDefault("loader.concurrency", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		timeToStringHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// timeToStringHookFunc converts time.Time values into YYYY-MM-DD strings.
// YAML parses an unquoted date scalar as a timestamp, which would otherwise
// fail to decode into string fields like recycle_reference_monday.
func timeToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from != reflect.TypeOf(time.Time{}) || to.Kind() != reflect.String {
			return data, nil
		}
		return data.(time.Time).Format("2006-01-02"), nil
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
