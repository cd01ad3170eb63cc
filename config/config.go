// Package config loads storefront settings from a YAML file and the environment.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// EnvPrefix namespaces every environment override, e.g. STOREFRONT_POLL_TIMEOUT.
const EnvPrefix = "STOREFRONT"

// Default returns the settings used when nothing overrides them.
func Default() *types.Config {
	return &types.Config{
		Network:        types.NetworkSolanaDevnet,
		Commitment:     "confirmed",
		RequestTimeout: defaultRequestTimeout,
		PartnerTTL:     defaultPartnerTTL,
		Poll:           types.DefaultPollConfig(),
		LogLevel:       "info",
	}
}

// Load reads path, when set, then applies environment overrides and
// validates the result. BACKEND_API and PARTNER_ID are honoured unprefixed
// as well.
func Load(path string) (*types.Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("backend_api", EnvPrefix+"_BACKEND_API", "BACKEND_API")
	_ = v.BindEnv("partner_id", EnvPrefix+"_PARTNER_ID", "PARTNER_ID")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, types.NewError(types.ErrConfigError, "failed to read "+path, err)
		}
	}

	cfg := &types.Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		decimalHook,
	))); err != nil {
		return nil, types.NewError(types.ErrConfigError, "failed to decode configuration", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg field rules and that the network is known.
func Validate(cfg *types.Config) error {
	if err := utils.ValidateStruct(cfg); err != nil {
		return types.NewError(types.ErrConfigError, "invalid configuration", err)
	}
	if _, err := cfg.Network.DefaultRPCUrl(); err != nil {
		return types.NewError(types.ErrConfigError, "invalid configuration", err)
	}

	seen := make(map[string]bool, len(cfg.Catalog))
	for _, item := range cfg.Catalog {
		if seen[item.ID] {
			return types.NewError(types.ErrConfigError, fmt.Sprintf("duplicate catalog item %q", item.ID), nil)
		}
		seen[item.ID] = true
		if !item.PriceUSD.IsPositive() {
			return types.NewError(types.ErrConfigError, fmt.Sprintf("catalog item %q needs a positive price", item.ID), nil)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *types.Config) {
	v.SetDefault("network", cfg.Network.String())
	v.SetDefault("commitment", cfg.Commitment)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("partner_ttl", cfg.PartnerTTL)
	v.SetDefault("poll.interval", cfg.Poll.Interval)
	v.SetDefault("poll.max_interval", cfg.Poll.MaxInterval)
	v.SetDefault("poll.multiplier", cfg.Poll.Multiplier)
	v.SetDefault("poll.timeout", cfg.Poll.Timeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("enable_metrics", false)
	v.SetDefault("rpc_url", "")
	v.SetDefault("keypair_path", "")
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes prices written as YAML numbers or strings.
func decimalHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}

	switch d := data.(type) {
	case string:
		return decimal.NewFromString(d)
	case float64:
		return decimal.NewFromFloat(d), nil
	case float32:
		return decimal.NewFromFloat32(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case int64:
		return decimal.NewFromInt(d), nil
	}
	return data, nil
}
