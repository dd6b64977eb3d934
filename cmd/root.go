package cmd

import (
	"errors"
	"log"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/driver-screener/internal/ai/gemini"
	"github.com/spigell/driver-screener/internal/screening"
	"github.com/spigell/driver-screener/internal/store"
)

const (
	app       = "driver-screener"
	envPrefix = "DRIVER_SCREENER"
)

type Config struct {
	Store     *StoreConfig     `mapstructure:"store"`
	Screening *ScreeningConfig `mapstructure:"screening"`
	Metrics   *MetricsConfig   `mapstructure:"metrics"`
	AI        *AIConfig        `mapstructure:"ai"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type ScreeningConfig struct {
	// Window screens only the first N requirements by priority.
	Window       int                    `mapstructure:"window"`
	NotMetPolicy screening.NotMetPolicy `mapstructure:"not-met-policy"`
	MaxFollowUps int                    `mapstructure:"max-follow-ups"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey            string               `mapstructure:"api-key"`
	APIKeyFile        string               `mapstructure:"api-key-file"`
	Model             string               `mapstructure:"model"`
	MaxRetries        int                  `mapstructure:"max-retries"`
	MaxLogLength      int                  `mapstructure:"max-log-length"`
	RequestsPerMinute int                  `mapstructure:"requests-per-minute"`
	Breaker           gemini.BreakerConfig `mapstructure:"breaker"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "driver-screener interviews truck driver candidates against a job's requirements",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is driver-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	breaker := gemini.DefaultBreakerConfig()

	v.SetDefault("store.path", store.DefaultPath)
	v.SetDefault("screening.window", 0)
	v.SetDefault("screening.not-met-policy", string(screening.PolicyAdvance))
	v.SetDefault("screening.max-follow-ups", screening.MaxFollowUps)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("ai.gemini.requests-per-minute", 0)
	v.SetDefault("ai.gemini.breaker.enabled", breaker.Enabled)
	v.SetDefault("ai.gemini.breaker.max-requests", breaker.MaxRequests)
	v.SetDefault("ai.gemini.breaker.interval", breaker.Interval)
	v.SetDefault("ai.gemini.breaker.timeout", breaker.Timeout)
	v.SetDefault("ai.gemini.breaker.min-requests", breaker.MinRequests)
	v.SetDefault("ai.gemini.breaker.failure-threshold", breaker.FailureThreshold)
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless it was given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToNotMetPolicyHookFunc(),
	)))
	if err != nil {
		return config, err
	}

	return config, nil
}

func stringToNotMetPolicyHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(screening.NotMetPolicy("")) {
			return data, nil
		}
		return screening.ParseNotMetPolicy(data.(string))
	}
}
