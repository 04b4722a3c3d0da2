//go:build !((darwin || linux || freebsd) && (amd64 || arm64))

package dylib

import (
	"runtime"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
)

// Service is unavailable on this platform.
type Service struct{ native.Service }

// Open always fails on this platform.
func Open(string) (*Service, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native library loading on "+runtime.GOOS+"/"+runtime.GOARCH)
}
