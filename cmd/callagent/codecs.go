//go:build !mediadevices

package main

import (
	"github.com/dkeye/LiveClass/internal/call/settings"
	"github.com/pion/mediadevices"
)

// Without capture drivers the agent joins receive-only.
func codecSelector(settings.VideoQuality) (*mediadevices.CodecSelector, error) {
	return nil, nil
}
