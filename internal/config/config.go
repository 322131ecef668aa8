package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"

	"github.com/integrail/gamma-client/pkg/client"
	"github.com/integrail/gamma-client/pkg/storage"
)

// File is the on-disk CLI configuration. Every field can also be set through GAMMA_* variables.
type File struct {
	Gamma       client.Config  `yaml:"gamma" json:"gamma"`
	Mirror      storage.Config `yaml:"mirror" json:"mirror"`
	LogLevel    string         `yaml:"logLevel" json:"logLevel" env:"GAMMA_LOG_LEVEL" env-default:"info"`
	LogFormat   string         `yaml:"logFormat" json:"logFormat" env:"GAMMA_LOG_FORMAT" env-default:"console"`
	MetricsAddr string         `yaml:"metricsAddr" json:"metricsAddr" env:"GAMMA_METRICS_ADDR"`
}

// Load reads path when it exists and applies environment variables on top. An empty path, or a
// missing file, means environment and defaults only.
func Load(path string) (*File, error) {
	cfg := &File{}
	var err error
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			err = cleanenv.ReadConfig(path, cfg)
		} else if !os.IsNotExist(statErr) {
			return nil, errors.Wrapf(statErr, "failed to read config %s", path)
		} else {
			err = cleanenv.ReadEnv(cfg)
		}
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(cfg, nil)
		return nil, errors.Errorf("config: %s; %s", err, desc)
	}
	return cfg, nil
}
