package coreclr

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wippyai/clr-host/errors"
)

// TrustedPlatformAssemblies builds the TRUSTED_PLATFORM_ASSEMBLIES value
// from the *.dll files in dirs. When two directories hold an assembly with
// the same file name the earlier directory wins.
func TrustedPlatformAssemblies(dirs ...string) (string, error) {
	seen := make(map[string]bool)
	var paths []string

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", errors.New(errors.PhaseInit, errors.KindInvalidInput).
				Path(dir).
				Cause(err).
				Detail("cannot list assemblies").
				Build()
		}

		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".dll") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return strings.Join(paths, string(os.PathListSeparator)), nil
}
