package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 NEP_DATABASE_DSN、NEP_PAYMENT_SECRETKEY
const EnvPrefix = "NEP"

// Load 加载配置：默认值 -> .env -> dir 下的 config.yaml -> NEP_ 环境变量
// dir 为空时只读取当前目录。
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	if err := godotenv.Load(dir + "/.env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults 把默认配置逐个 key 注册给 viper，AutomaticEnv 只对已知 key 生效
func setDefaults(v *viper.Viper, def *Config) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return err
	}
	flatten(v, "", tree)
	return nil
}

func flatten(v *viper.Viper, prefix string, node map[string]interface{}) {
	for k, val := range node {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if child, ok := val.(map[string]interface{}); ok {
			flatten(v, key, child)
			continue
		}
		v.SetDefault(key, val)
	}
}
