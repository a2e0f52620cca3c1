package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go.uber.org/fx"

	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const moduleName = "config"

// envPrefix is prepended to every environment override, e.g. CAPTURE_SELFCAL_LOOPS.
const envPrefix = "CAPTURE_"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string         `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig loads configuration from the given bytes and the environment.
//
// Order of precedence (lowest first):
//  1. defaults from NewConfig()
//  2. the YAML document, after ${VAR} expansion
//  3. CAPTURE_* environment variables
func loadConfig(envFilePath string, raw EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(raw)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err, exception.KindConfiguration)
	}

	// Unmarshalling onto the defaults keeps every key the document leaves out.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal config", err, exception.KindConfiguration)
	}

	if err := loadStructFromEnv(reflect.ValueOf(&cfg.Capture).Elem(), envPrefix); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, exception.KindConfiguration)
	}

	cfg.Capture.Stages.Normalize()
	cfg.EmbeddedConfig = raw
	return cfg, nil
}

// LoadConfig loads configuration from raw YAML bytes and the environment, then validates it.
//
// Parameters:
//
//	envFilePath: The path to the .env file; empty loads ./.env if present.
//	raw: The YAML document.
//
// Returns:
//
//	The loaded Config, or a KindConfiguration BatchError.
func LoadConfig(envFilePath string, raw EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(envFilePath, raw, NewOsEnvironmentExpander())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads path and calls LoadConfig.
func LoadConfigFile(envFilePath, path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfiguration, "failed to read config file %s", path, err)
	}
	return LoadConfig(envFilePath, raw)
}

// NewConfigProvider is an fx provider that loads and provides *Config.
// It also applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Capture.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Capture.System.Logging.Level)
	return cfg, nil
}

// Validate checks the values the stages cannot run without.
func (c *Config) Validate() error {
	cc := c.Capture
	var problems []string

	if cc.Stages.FromFITS && cc.Inputs.FITSFile == "" {
		problems = append(problems, "inputs.fits_file is required when stages.from_fits is set")
	}
	if cc.Inputs.MSFile == "" && (cc.Stages.FromFITS || cc.Stages.FromMultiSrcMS || cc.Stages.DoInitCal || cc.Stages.FlagInit) {
		problems = append(problems, "inputs.ms_file is required by the enabled stages")
	}
	if cc.SelfCal.Loops < 0 {
		problems = append(problems, "selfcal.loops must not be negative")
	}
	if cc.SelfCal.PhaseLoops < 0 {
		problems = append(problems, "selfcal.phase_loops must not be negative")
	}
	if (cc.Stages.DoSelfCal || cc.Stages.DoSubbandSelfCal) && cc.SelfCal.Loops > 0 {
		if cc.SelfCal.NiterStart <= 0 {
			problems = append(problems, "selfcal.niter_start must be positive")
		}
		if cc.SelfCal.MJyThreshold <= 0 {
			problems = append(problems, "selfcal.mjy_threshold must be positive")
		}
		if len(cc.SelfCal.Solints) < cc.SelfCal.Loops {
			problems = append(problems, fmt.Sprintf("selfcal.solints needs %d entries, got %d", cc.SelfCal.Loops, len(cc.SelfCal.Solints)))
		}
	}
	if cc.Stages.DoSubbandSelfCal && cc.SelfCal.SubbandChan <= 0 {
		problems = append(problems, "selfcal.subband_chan must be positive")
	}
	if cc.Stages.DoSplitAvg && cc.SelfCal.ChanAvg <= 0 {
		problems = append(problems, "selfcal.chan_avg must be positive")
	}
	if cc.SelfCal.KeepGenerations < 1 {
		problems = append(problems, "selfcal.keep_generations must be at least 1")
	}
	switch cc.Engine.Type {
	case "casa", "simulated":
	default:
		problems = append(problems, fmt.Sprintf("engine.type %q is not one of casa, simulated", cc.Engine.Type))
	}

	if len(problems) > 0 {
		return exception.NewBatchError(moduleName, strings.Join(problems, "; "), exception.ErrConfiguration, exception.KindConfiguration)
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name:
// capture.selfcal.loops is read from CAPTURE_SELFCAL_LOOPS.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// Slices and ClipRange take comma-separated values.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Type() == reflect.TypeOf(ClipRange{}) {
		var r ClipRange
		if err := r.parse(value); err != nil {
			return err
		}
		field.Set(reflect.ValueOf(r))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setField(elem, strings.TrimSpace(p)); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
	}
	return nil
}
