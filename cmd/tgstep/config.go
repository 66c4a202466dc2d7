package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the tgstep configuration file (~/.config/tgstep/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ModelsDir string `yaml:"models_dir"`
	ONNX      string `yaml:"onnx"`
	Threads   *int64 `yaml:"threads"`
	NumShard  *int64 `yaml:"num_shard"`

	MaxNewTokens     *int64 `yaml:"max_new_tokens"`
	MaxStopSequences *int64 `yaml:"max_stop_sequences"`

	LogLevel   string `yaml:"log_level"`
	JSONOutput *bool  `yaml:"json_output"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tgstep", "config.yaml")
}

// applyModelConfig fills model and logging flags the user did not set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.ONNX != "" && !c.IsSet("onnx") {
		onnxPath = cfg.ONNX
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		threads = *cfg.Threads
	}
	if cfg.NumShard != nil && !c.IsSet("num-shard") {
		numShard = *cfg.NumShard
	}
	if cfg.LogLevel != "" && !c.IsSet("logger-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.JSONOutput != nil && !c.IsSet("json-output") {
		jsonOutput = *cfg.JSONOutput
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxNewTokens, maxStop *int64) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxNewTokens != nil && !c.IsSet("max-new-tokens") {
		*maxNewTokens = *cfg.MaxNewTokens
	}
	if cfg.MaxStopSequences != nil && !c.IsSet("max-stop-sequences") {
		*maxStop = *cfg.MaxStopSequences
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
