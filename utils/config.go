package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig reports a hyperparameter outside its allowed range.
var ErrInvalidConfig = errors.New("invalid network config")

// NetworkConfig holds the architecture and simulation hyperparameters shared by
// the baseline and spiking networks. It is read once at construction.
type NetworkConfig struct {
	Resolution int `json:"resolution" yaml:"resolution"`

	ConvKernel  int `json:"conv_kernel" yaml:"conv_kernel"`
	ConvPadding int `json:"conv_padding" yaml:"conv_padding"`
	ConvStride  int `json:"conv_stride" yaml:"conv_stride"`
	PoolKernel  int `json:"pool_kernel" yaml:"pool_kernel"`
	PoolPadding int `json:"pool_padding" yaml:"pool_padding"`
	PoolStride  int `json:"pool_stride" yaml:"pool_stride"`

	// ChannelWidths are the output channels of the five convolutions.
	ChannelWidths []int `json:"channel_widths" yaml:"channel_widths"`

	Dropout float64 `json:"dropout" yaml:"dropout"`
	Hidden  int     `json:"hidden" yaml:"hidden"`
	Outputs int     `json:"outputs" yaml:"outputs"`

	Beta      float64 `json:"beta" yaml:"beta"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Surrogate string  `json:"surrogate" yaml:"surrogate"`
	Slope     float64 `json:"slope" yaml:"slope"` // surrogate sharpness

	Steps     int    `json:"steps" yaml:"steps"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
	Seed      uint64 `json:"seed" yaml:"seed"`
}

// DefaultNetworkConfig returns a 32x32 single-channel configuration with "same"
// convolutions and three 2x2 pooling stages.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Resolution:    32,
		ConvKernel:    3,
		ConvPadding:   1,
		ConvStride:    1,
		PoolKernel:    2,
		PoolPadding:   0,
		PoolStride:    2,
		ChannelWidths: []int{64, 128, 128, 256, 256},
		Dropout:       0.5,
		Hidden:        256,
		Outputs:       10,
		Beta:          0.9,
		Threshold:     1.0,
		Surrogate:     "fast_sigmoid",
		Slope:         25,
		Steps:         25,
		BatchSize:     16,
		Seed:          1,
	}
}

// ValidateNetworkConfig checks ranges of individual fields. Whether the
// geometry collapses is checked when a network is built.
func ValidateNetworkConfig(config *NetworkConfig) error {
	if config.Resolution <= 0 {
		return fmt.Errorf("%w: resolution must be positive", ErrInvalidConfig)
	}
	if config.ConvKernel <= 0 || config.PoolKernel <= 0 {
		return fmt.Errorf("%w: kernel sizes must be positive", ErrInvalidConfig)
	}
	if config.ConvStride <= 0 || config.PoolStride <= 0 {
		return fmt.Errorf("%w: strides must be positive", ErrInvalidConfig)
	}
	if config.ConvPadding < 0 || config.PoolPadding < 0 {
		return fmt.Errorf("%w: padding must be non-negative", ErrInvalidConfig)
	}
	if len(config.ChannelWidths) != 5 {
		return fmt.Errorf("%w: channel widths must have 5 entries, got %d", ErrInvalidConfig, len(config.ChannelWidths))
	}
	for i, c := range config.ChannelWidths {
		if c <= 0 {
			return fmt.Errorf("%w: channel width %d must be positive", ErrInvalidConfig, i)
		}
	}
	if config.Dropout < 0 || config.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1)", ErrInvalidConfig)
	}
	if config.Hidden <= 0 || config.Outputs <= 0 {
		return fmt.Errorf("%w: hidden and output widths must be positive", ErrInvalidConfig)
	}
	if config.Beta < 0 || config.Beta > 1 {
		return fmt.Errorf("%w: beta must be in [0, 1]", ErrInvalidConfig)
	}
	if config.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidConfig)
	}
	if config.Slope <= 0 {
		return fmt.Errorf("%w: surrogate slope must be positive", ErrInvalidConfig)
	}
	if config.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive", ErrInvalidConfig)
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadNetworkConfig reads a JSON or YAML (.yaml/.yml) file over the defaults.
// Fields missing from the file keep their default values.
func LoadNetworkConfig(path string) (NetworkConfig, error) {
	cfg := DefaultNetworkConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := ValidateNetworkConfig(&cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseChannelWidths parses a comma or space separated list such as "64,128,128,256,256".
func ParseChannelWidths(s string) ([]int, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	widths := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		widths[i] = n
	}
	return widths, nil
}
