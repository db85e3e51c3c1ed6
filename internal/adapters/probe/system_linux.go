//go:build linux

package probe

const systemProbeSupported = true
