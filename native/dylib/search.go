package dylib

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/wippyai/native-bridge/errors"
)

// EnvLibraryDir overrides the library search. When set, only that
// directory is searched.
const EnvLibraryDir = "NATIVE_BRIDGE_LIB_DIR"

// ErrLibraryNotFound is the cause of load errors when no candidate file exists.
var ErrLibraryNotFound = stderrors.New("native client library not found")

// LibraryNames returns the file names tried in each search directory.
func LibraryNames(goos string) []string {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return []string{"libtc_client.so", "libtc_client.so.1"}
	case "darwin":
		return []string{"libtc_client.dylib"}
	case "windows":
		return []string{"tc_client.dll", "libtc_client.dll"}
	default:
		return nil
	}
}

// SearchPaths returns the directories Find walks, in order.
func SearchPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, splitEnv("DYLD_LIBRARY_PATH")...)
	case "windows":
		paths = append(paths, splitEnv("PATH")...)
	default:
		paths = append(paths, splitEnv("LD_LIBRARY_PATH")...)
	}

	paths = append(paths, "/usr/local/lib", "/usr/lib", "/lib")
	switch {
	case runtime.GOOS == "linux" && runtime.GOARCH == "amd64":
		paths = append(paths, "/usr/lib/x86_64-linux-gnu")
	case runtime.GOOS == "linux" && runtime.GOARCH == "arm64":
		paths = append(paths, "/usr/lib/aarch64-linux-gnu")
	case runtime.GOOS == "darwin":
		paths = append(paths, "/opt/homebrew/lib")
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}
	return paths
}

// Find resolves the library path. An explicit path is checked as is.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Load(fmt.Sprintf("library %s", explicit), err)
		}
		return explicit, nil
	}

	names := LibraryNames(runtime.GOOS)
	if len(names) == 0 {
		return "", errors.Unsupported(errors.PhaseLoad,
			fmt.Sprintf("platform %s/%s", runtime.GOOS, runtime.GOARCH))
	}

	if dir := os.Getenv(EnvLibraryDir); dir != "" {
		if path, ok := lookIn([]string{dir}, names); ok {
			return path, nil
		}
		return "", errors.Load(fmt.Sprintf("%s=%s does not contain %s", EnvLibraryDir, dir, names[0]), ErrLibraryNotFound)
	}

	dirs := SearchPaths()
	if path, ok := lookIn(dirs, names); ok {
		return path, nil
	}
	return "", errors.Load(fmt.Sprintf("searched %s for %s", strings.Join(dirs, ", "), names[0]), ErrLibraryNotFound)
}

func lookIn(dirs, names []string) (string, bool) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range names {
			path := filepath.Join(dir, name)
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}

func splitEnv(name string) []string {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	return filepath.SplitList(v)
}
