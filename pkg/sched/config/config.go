// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads scheduler tuning from a TOML file: priority-band
// boundaries, the aging wait threshold and step, and the burst
// estimator's smoothing factor. Callers that don't supply a file get
// the classroom defaults back unchanged.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Bands describes the inclusive priority ranges mapped to L1, L2, and L3.
type Bands struct {
	L1Min int `toml:"l1_min"`
	L1Max int `toml:"l1_max"`
	L2Min int `toml:"l2_min"`
	L2Max int `toml:"l2_max"`
	L3Min int `toml:"l3_min"`
	L3Max int `toml:"l3_max"`
}

// Aging describes the aging engine's wait threshold and priority step.
type Aging struct {
	WaitThresholdTicks int64 `toml:"wait_threshold_ticks"`
	Step               int   `toml:"step"`
}

// Burst describes the burst estimator's exponential-smoothing factor.
type Burst struct {
	Alpha float64 `toml:"alpha"`
}

// Config is the full set of scheduler tuning knobs.
type Config struct {
	Bands Bands `toml:"bands"`
	Aging Aging `toml:"aging"`
	Burst Burst `toml:"burst"`
}

// Default returns the classroom scheduler's own constants: bands
// [100,149]/[50,99]/[0,49], aging after 1500 ticks of waiting in steps
// of 10, and burst smoothing with alpha=0.5.
func Default() Config {
	return Config{
		Bands: Bands{
			L1Min: 100, L1Max: 149,
			L2Min: 50, L2Max: 99,
			L3Min: 0, L3Max: 49,
		},
		Aging: Aging{
			WaitThresholdTicks: 1500,
			Step:               10,
		},
		Burst: Burst{
			Alpha: 0.5,
		},
	}
}

// Load reads and validates a TOML config file, starting from Default()
// so an omitted section keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the band boundaries are contiguous and increasing,
// and that Alpha is a valid smoothing factor for the burst estimator.
func (c Config) Validate() error {
	b := c.Bands
	switch {
	case b.L3Min > b.L3Max:
		return fmt.Errorf("l3_min (%d) > l3_max (%d)", b.L3Min, b.L3Max)
	case b.L2Min > b.L2Max:
		return fmt.Errorf("l2_min (%d) > l2_max (%d)", b.L2Min, b.L2Max)
	case b.L1Min > b.L1Max:
		return fmt.Errorf("l1_min (%d) > l1_max (%d)", b.L1Min, b.L1Max)
	case b.L3Max+1 != b.L2Min:
		return fmt.Errorf("bands must be contiguous: l3_max+1 (%d) != l2_min (%d)", b.L3Max+1, b.L2Min)
	case b.L2Max+1 != b.L1Min:
		return fmt.Errorf("bands must be contiguous: l2_max+1 (%d) != l1_min (%d)", b.L2Max+1, b.L1Min)
	}
	if c.Aging.WaitThresholdTicks < 0 {
		return fmt.Errorf("aging.wait_threshold_ticks must be >= 0, got %d", c.Aging.WaitThresholdTicks)
	}
	if c.Aging.Step < 0 {
		return fmt.Errorf("aging.step must be >= 0, got %d", c.Aging.Step)
	}
	if c.Burst.Alpha < 0 || c.Burst.Alpha > 1 {
		return fmt.Errorf("burst.alpha must be in [0,1], got %v", c.Burst.Alpha)
	}
	return nil
}
