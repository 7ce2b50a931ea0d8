package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HealthThresholds holds the backlog levels at which maintenance emits
// warnings. Zero values fall back to the env-configured defaults.
type HealthThresholds struct {
	MainBacklog  int64 `yaml:"main_backlog"`
	InFlight     int64 `yaml:"in_flight"`
	Failed       int64 `yaml:"failed"`
	RetryBacklog int64 `yaml:"retry_backlog"`
}

// Thresholds resolves the effective health thresholds: the env defaults,
// overridden by HealthConfigFile when it is set and parseable.
func (c Config) Thresholds() (HealthThresholds, error) {
	th := HealthThresholds{
		MainBacklog:  c.MainBacklogThreshold,
		InFlight:     c.InFlightThreshold,
		Failed:       c.FailedThreshold,
		RetryBacklog: c.RetryBacklogThreshold,
	}
	if c.HealthConfigFile == "" {
		return th, nil
	}
	b, err := os.ReadFile(c.HealthConfigFile)
	if err != nil {
		return th, fmt.Errorf("op=config.thresholds: %w", err)
	}
	var file HealthThresholds
	if err := yaml.Unmarshal(b, &file); err != nil {
		return th, fmt.Errorf("op=config.thresholds: %w", err)
	}
	if file.MainBacklog > 0 {
		th.MainBacklog = file.MainBacklog
	}
	if file.InFlight > 0 {
		th.InFlight = file.InFlight
	}
	if file.Failed > 0 {
		th.Failed = file.Failed
	}
	if file.RetryBacklog > 0 {
		th.RetryBacklog = file.RetryBacklog
	}
	return th, nil
}
