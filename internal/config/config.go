package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Logger struct {
	Level string `yaml:"level"`
}

type Global struct {
	Logger Logger `yaml:"logger"`
}

type Lister struct {
	Name            string `yaml:"name"`
	Instance        string `yaml:"instance"`
	URL             string `yaml:"url"`
	CredentialsFile string `yaml:"credentials_file"`
	PageSize        int    `yaml:"page_size"`
}

type Scheduler struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
}

type Journal struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Global    Global    `yaml:"global"`
	Lister    Lister    `yaml:"lister"`
	Scheduler Scheduler `yaml:"scheduler"`
	Journal   *Journal  `yaml:"journal"`
	Server    Server    `yaml:"server"`
}

func NewFromFile(fpath string) (*Config, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(bs, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
