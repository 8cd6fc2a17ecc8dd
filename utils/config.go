package utils

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// UnmarshalConfig converts a loosely typed params section (map from YAML)
// into a typed config struct, keeping the struct's defaults for absent keys.
// Keys follow the json tags; durations may be written as "5s" or "1m30s".
func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	return decoder.Decode(config)
}
