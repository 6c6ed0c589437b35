// File: driver/config.go
// Author: momentics <momentics@gmail.com>

package driver

import (
	"time"

	"go.uber.org/zap"
)

// Config holds media driver parameters.
type Config struct {
	// Dir identifies the driver; clients connect by the same path.
	Dir string
	// DirCreate creates Dir when missing instead of failing.
	DirCreate bool
	// TermLength is the default image capacity in fragments.
	TermLength int
	// CommandQueue bounds pending conductor commands.
	CommandQueue int
	// ImageLivenessTimeout expires UDP images that stopped receiving.
	ImageLivenessTimeout time.Duration
	// Logger receives driver diagnostics; nil disables them.
	Logger *zap.Logger
}

// DefaultConfig returns defaults for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                  dir,
		DirCreate:            true,
		TermLength:           1024,
		CommandQueue:         256,
		ImageLivenessTimeout: 10 * time.Second,
	}
}

func (c *Config) normalize() {
	if c.TermLength <= 0 {
		c.TermLength = 1024
	}
	if c.CommandQueue <= 0 {
		c.CommandQueue = 256
	}
	if c.ImageLivenessTimeout <= 0 {
		c.ImageLivenessTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
