package utils

import (
	"os"
	"path/filepath"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const LogLevelVariable = "LURKER_LOG_LEVEL"

type config interface {
	entities.NodeConfig | []entities.SensorConfig
}

func readTextFile(filepathName string) ([]byte, error) {
	fileContent, err := os.ReadFile(filepath.Clean(filepathName))
	return fileContent, err
}

// ConfigurationParser decodes the YAML file over configEntity, so fields the
// file omits keep the values they had.
func ConfigurationParser[T config](filepathName string, configEntity T) (T, error) {
	fileContent, err := readTextFile(filepathName)
	if err != nil {
		return configEntity, err
	}

	err = yaml.Unmarshal(fileContent, &configEntity)
	return configEntity, err
}

// LoadNodeConfig layers the file over the defaults, applies the environment
// override for the log level and validates the result.
func LoadNodeConfig(filepathName string) (entities.NodeConfig, error) {
	conf, err := ConfigurationParser(filepathName, entities.DefaultNodeConfig())
	if err != nil {
		return conf, errors.Wrapf(err, "parse %s", filepathName)
	}
	if level := os.Getenv(LogLevelVariable); level != "" {
		conf.LogLevel = level
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}
