package pipeline

import (
	"github.com/Caia-Tech/caia-quizcheck/pkg/config"
)

// OptionsFromConfig maps the pipeline section of the application config onto stage options
func OptionsFromConfig(cfg *config.PipelineConfig, events *EventBus) Options {
	if cfg == nil {
		return Options{Events: events}
	}
	consistencyConfig := cfg.ConsistencyConfig()
	return Options{
		Validation:            cfg.Validation,
		Consistency:           &consistencyConfig,
		DisabledNormalization: append([]string(nil), cfg.DisabledNormalization...),
		Events:                events,
		DefaultProvider:       cfg.DefaultProvider,
		RunTimeout:            cfg.RunTimeout,
	}
}
