package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Clone 深拷贝策略配置，切片字段不再与原配置共享底层数组。
func (s StrategyConfig) Clone() StrategyConfig {
	out := s
	out.Risk.TPRatios = append([]float64(nil), s.Risk.TPRatios...)
	out.Risk.TPWeights = append([]float64(nil), s.Risk.TPWeights...)
	out.Session.Windows = append([]SessionWindow(nil), s.Session.Windows...)
	return out
}

// WithOverrides 在副本上覆盖 patch 中出现的键（键名与配置文件一致，如 momentum.rsi_oversold 所在的嵌套 map），
// 未出现的键保持原值；未知键报错，结果会重新校验。
func (s StrategyConfig) WithOverrides(patch map[string]any) (StrategyConfig, error) {
	out := s.Clone()
	if len(patch) == 0 {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return StrategyConfig{}, err
	}
	if err := dec.Decode(patch); err != nil {
		return StrategyConfig{}, fmt.Errorf("strategy overrides: %w", err)
	}
	if err := out.validate(); err != nil {
		return StrategyConfig{}, err
	}
	return out, nil
}
