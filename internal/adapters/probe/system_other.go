//go:build !linux

package probe

// lshw is Linux-only; the system probe always reports TOOL_UNAVAILABLE elsewhere.
const systemProbeSupported = false
