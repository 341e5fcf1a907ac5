package settings

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings are the process-level defaults read from the environment. Command
// line flags take precedence over them.
type Settings struct {
	Store       string `env:"STORE" envDefault:"memory"`
	DBPath      string `env:"DB_PATH" envDefault:"cscplan.db"`
	Workers     int    `env:"WORKERS" envDefault:"0"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ExportsDir  string `env:"EXPORTS_DIR" envDefault:"exports"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

const Prefix = "CSCPLAN_"

func Load() (Settings, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads settings from the given variables instead of the process
// environment.
func LoadFrom(environment map[string]string) (Settings, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environment})
}

func parse(opts env.Options) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return Settings{}, aggErr.Errors[0]
		}
		return Settings{}, err
	}
	if s.Workers < 0 {
		return Settings{}, fmt.Errorf("%sWORKERS must be >= 0, got %d", Prefix, s.Workers)
	}
	return s, nil
}
