//go:build !linux

package driver

import (
	"errors"
	"io"

	"lp55231/config"
	"lp55231/core"
)

func openLinux(config.LinuxConfig) (core.Transport, io.Closer, error) {
	return nil, nil, errors.New("driver: the linux transport needs i2c-dev")
}
