//go:build !linux

package main

import (
	"errors"
	"log/slog"
)

type evdevSource struct{}

func openEvdevSource(paths []string, logger *slog.Logger) (*evdevSource, error) {
	return nil, errors.New("evdev key state requires linux")
}

func (s *evdevSource) Active() KeySet { return KeySet{} }

func (s *evdevSource) Close() error { return nil }
