//go:build linux

package driver

import (
	"io"

	"lp55231/config"
	"lp55231/core"
	"lp55231/targets/linux"
)

func openLinux(cfg config.LinuxConfig) (core.Transport, io.Closer, error) {
	b, err := linux.Open(cfg.Bus, cfg.Address)
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}
