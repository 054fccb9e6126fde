package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/afspm-go/afspm/monitor"
)

// componentConfig is one entry of a config file: a JSON-encoded recipe for
// a single component, translated directly into a monitor.Descriptor.
// Building the recipe itself -- which binary, which flags select which
// component -- is this package's job; the Monitor never inspects it.
type componentConfig struct {
	Command               string            `json:"command"`
	Args                  []string          `json:"args"`
	Env                   map[string]string `json:"env"`
	BeatPeriodMillis      int64             `json:"beat_period_ms"`
	MissedBeatsBeforeDead int               `json:"missed_beats_before_dead"`
}

// config is the top-level shape of an afspmd config file: a JSON object
// keyed by component instance name.
type config map[string]componentConfig

func loadConfig(path string) (config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	var cfg config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// filter selects the subset of cfg matching include/exclude (spec §6's
// spawn-all [include]/[exclude] options). At most one of include/exclude
// may be non-empty.
func (c config) filter(include, exclude []string) (config, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("only one of include or exclude may be set")
	}

	includeSet := toSet(include)
	excludeSet := toSet(exclude)
	noFiltering := len(includeSet) == 0 && len(excludeSet) == 0

	out := make(config)
	for name, cc := range c {
		switch {
		case noFiltering:
			out[name] = cc
		case len(includeSet) > 0:
			if includeSet[name] {
				out[name] = cc
			}
		default:
			if !excludeSet[name] {
				out[name] = cc
			}
		}
	}

	if len(includeSet) > 0 {
		for _, name := range include {
			if _, ok := c[name]; !ok {
				return nil, fmt.Errorf("requested component %q not found in config", name)
			}
		}
	}

	return out, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// descriptors returns cfg's components as monitor.Descriptors, sorted by
// name for deterministic startup order.
func (c config) descriptors() []monitor.Descriptor {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]monitor.Descriptor, 0, len(names))
	for _, name := range names {
		cc := c[name]
		env := os.Environ()
		for k, v := range cc.Env {
			env = append(env, k+"="+v)
		}
		period := time.Duration(cc.BeatPeriodMillis) * time.Millisecond
		out = append(out, monitor.Descriptor{
			Name:                  name,
			Command:               cc.Command,
			Args:                  cc.Args,
			Env:                   env,
			BeatPeriod:            period,
			MissedBeatsBeforeDead: cc.MissedBeatsBeforeDead,
		})
	}
	return out
}
