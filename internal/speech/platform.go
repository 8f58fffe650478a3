package speech

import "runtime"

// BackendAuto selects the native backend for the running OS.
const BackendAuto = "auto"

// ResolveBackend maps "auto" (or an empty name) to the platform's native
// speech engine and returns any other name unchanged.
func ResolveBackend(name string) string {
	if name != "" && name != BackendAuto {
		return name
	}
	return platformBackend(runtime.GOOS)
}

func platformBackend(goos string) string {
	switch goos {
	case "darwin":
		return "say"
	case "windows":
		return "sapi"
	default:
		return "espeak"
	}
}
