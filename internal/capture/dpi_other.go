//go:build !windows

package capture

func enableDPIAwareness() error { return nil }
