// File: driver/registry.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide directory -> driver registry and the cnc.dat descriptor.

package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/momentics/hioload-bus/api"
)

// CncFile is written into the driver directory while the driver runs.
const CncFile = "cnc.dat"

// ErrDriverActive is returned when a directory already has a driver.
var ErrDriverActive = errors.New("media driver already active for directory")

var registry = struct {
	sync.Mutex
	drivers map[string]*MediaDriver
}{drivers: make(map[string]*MediaDriver)}

// CncInfo describes a running driver.
type CncInfo struct {
	Version    int       `cbor:"1,keyasint"`
	PID        int       `cbor:"2,keyasint"`
	StartedAt  time.Time `cbor:"3,keyasint"`
	TermLength int       `cbor:"4,keyasint"`
}

const cncVersion = 1

func canonicalDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty driver directory", api.ErrNoDriver)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func prepareDir(dir string, create bool) error {
	fi, err := os.Stat(dir)
	switch {
	case err == nil && !fi.IsDir():
		return fmt.Errorf("driver dir %s is not a directory", dir)
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist) && create:
		return os.MkdirAll(dir, 0o755)
	default:
		return fmt.Errorf("driver dir %s: %w", dir, err)
	}
}

func writeCnc(dir string, info CncInfo) error {
	data, err := encMode.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CncFile), data, 0o644)
}

// ReadCnc reads the descriptor of the driver running in dir.
func ReadCnc(dir string) (CncInfo, error) {
	var info CncInfo
	data, err := os.ReadFile(filepath.Join(dir, CncFile))
	if err != nil {
		return info, err
	}
	err = decMode.Unmarshal(data, &info)
	return info, err
}

func register(dir string, md *MediaDriver) error {
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.drivers[dir]; ok {
		return fmt.Errorf("%w: %s", ErrDriverActive, dir)
	}
	registry.drivers[dir] = md
	return nil
}

func unregister(dir string, md *MediaDriver) {
	registry.Lock()
	defer registry.Unlock()
	if registry.drivers[dir] == md {
		delete(registry.drivers, dir)
	}
}

func lookup(dir string) (*MediaDriver, error) {
	cdir, err := canonicalDir(dir)
	if err != nil {
		return nil, err
	}
	registry.Lock()
	md := registry.drivers[cdir]
	registry.Unlock()
	if md == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrNoDriver, cdir)
	}
	return md, nil
}

// Connect attaches a client to the driver running for dir.
func Connect(dir string, listener api.DriverListener) (*Client, error) {
	md, err := lookup(dir)
	if err != nil {
		return nil, err
	}
	return md.connect(listener)
}
