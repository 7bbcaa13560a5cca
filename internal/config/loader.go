package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const ingestEnvPrefix = "INGEST_"

// LoadIngestConfig 按优先级叠加：默认值 -> YAML 文件（path 非空时） -> INGEST_ 环境变量。
// 环境变量中 "__" 表示层级，例如 INGEST_VALIDATION__HEART_RATE_MAX=250，
// INGEST_DISABLED_NAMES 使用逗号分隔。
func LoadIngestConfig(path string) (*IngestConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load ingest config file %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue(ingestEnvPrefix, ".", func(key, value string) (string, interface{}) {
		if key == "INGEST_CONFIG_FILE" {
			return "", nil
		}
		key = strings.ToLower(strings.TrimPrefix(key, ingestEnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if key == "disabled_names" {
			var names []string
			for _, n := range strings.Split(value, ",") {
				if n = strings.TrimSpace(n); n != "" {
					names = append(names, n)
				}
			}
			return key, names
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load ingest config from env: %w", err)
	}

	cfg := DefaultIngestConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode ingest config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
