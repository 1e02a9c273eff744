package sources

import (
	"io"

	yaml "gopkg.in/yaml.v2"
)

const (
	KindPostgres string = "postgres"
	KindDynamoDB string = "dynamodb"
	KindHTTP     string = "http"
)

type EntityInfo struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

type SourceConfig struct {
	ID       string       `yaml:"id"`
	Kind     string       `yaml:"kind"`
	Entities []EntityInfo `yaml:"entities"`

	// postgres
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`

	// dynamodb
	Region      string `yaml:"region"`
	TablePrefix string `yaml:"tablePrefix"`

	// dynamodb and http
	Endpoint string `yaml:"endpoint"`

	// http
	Headers map[string]string `yaml:"headers"`
}

type Config struct {
	Sources []SourceConfig `yaml:"sources"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)

	return cfg, err
}
