package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Scheduler Scheduler `mapstructure:"SCHEDULER"`
	Analyzer  Analyzer  `mapstructure:"ANALYZER"`
}

// Scheduler controls the daily generation tick and alert derivation windows.
type Scheduler struct {
	RunHour          int `mapstructure:"RUN_HOUR"`
	RunMinute        int `mapstructure:"RUN_MINUTE"`
	LookaheadDays    int `mapstructure:"LOOKAHEAD_DAYS"`
	AlertHorizonDays int `mapstructure:"ALERT_HORIZON_DAYS"`
}

// Analyzer carries the effectiveness scoring knobs. The defaults mirror the
// operational values the reporting side expects; keep them configurable
// rather than hard-coded.
type Analyzer struct {
	StabilityBand          float64 `mapstructure:"STABILITY_BAND"`
	CompletionWeight       float64 `mapstructure:"COMPLETION_WEIGHT"`
	QualityWeight          float64 `mapstructure:"QUALITY_WEIGHT"`
	CostWeight             float64 `mapstructure:"COST_WEIGHT"`
	LowEffectivenessScore  float64 `mapstructure:"LOW_EFFECTIVENESS_SCORE"`
	BudgetRiskRatio        float64 `mapstructure:"BUDGET_RISK_RATIO"`
	MinQualityRating       float64 `mapstructure:"MIN_QUALITY_RATING"`
	MaxQualityRating       float64 `mapstructure:"MAX_QUALITY_RATING"`
	RecentCompletedWindowD int     `mapstructure:"RECENT_COMPLETED_WINDOW_DAYS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, env + defaults carry a dev setup.
		zap.L().Warn("config file not loaded, using defaults", zap.Error(err))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "maintenance-engine")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("SCHEDULER.RUN_HOUR", 1)
	v.SetDefault("SCHEDULER.RUN_MINUTE", 0)
	v.SetDefault("SCHEDULER.LOOKAHEAD_DAYS", 30)
	v.SetDefault("SCHEDULER.ALERT_HORIZON_DAYS", 7)
	v.SetDefault("ANALYZER.STABILITY_BAND", 0.05)
	v.SetDefault("ANALYZER.COMPLETION_WEIGHT", 1.0/3.0)
	v.SetDefault("ANALYZER.QUALITY_WEIGHT", 1.0/3.0)
	v.SetDefault("ANALYZER.COST_WEIGHT", 1.0/3.0)
	v.SetDefault("ANALYZER.LOW_EFFECTIVENESS_SCORE", 70.0)
	v.SetDefault("ANALYZER.BUDGET_RISK_RATIO", 0.8)
	v.SetDefault("ANALYZER.MIN_QUALITY_RATING", 0.0)
	v.SetDefault("ANALYZER.MAX_QUALITY_RATING", 5.0)
	v.SetDefault("ANALYZER.RECENT_COMPLETED_WINDOW_DAYS", 7)
}

// DefaultAnalyzer returns the analyzer settings used when no configuration is
// present, mirroring setDefaults.
func DefaultAnalyzer() Analyzer {
	return Analyzer{
		StabilityBand:          0.05,
		CompletionWeight:       1.0 / 3.0,
		QualityWeight:          1.0 / 3.0,
		CostWeight:             1.0 / 3.0,
		LowEffectivenessScore:  70.0,
		BudgetRiskRatio:        0.8,
		MinQualityRating:       0,
		MaxQualityRating:       5,
		RecentCompletedWindowD: 7,
	}
}
