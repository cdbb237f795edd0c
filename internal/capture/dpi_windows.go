//go:build windows

package capture

import (
	"golang.org/x/sys/windows"
)

// DPI_AWARENESS_CONTEXT_PER_MONITOR_AWARE_V2
const perMonitorAwareV2 = ^uintptr(3)

var (
	user32                            = windows.NewLazySystemDLL("user32.dll")
	procSetProcessDpiAwarenessContext = user32.NewProc("SetProcessDpiAwarenessContext")
)

// enableDPIAwareness makes screen coordinates physical pixels so capture
// regions match what the game renders on scaled displays.
func enableDPIAwareness() error {
	if err := procSetProcessDpiAwarenessContext.Find(); err != nil {
		// before Windows 10 1703
		return nil
	}
	r, _, err := procSetProcessDpiAwarenessContext.Call(perMonitorAwareV2)
	if r == 0 && err != windows.ERROR_ACCESS_DENIED {
		// ERROR_ACCESS_DENIED means awareness was already set
		return err
	}
	return nil
}
