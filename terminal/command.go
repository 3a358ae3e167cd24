package terminal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/moyoez/codesync-go/types"
)

// runner builds the shell line for a file. stem is the name without extension.
type runner func(file, stem string) string

var runners = map[string]runner{
	".js": func(f, _ string) string { return "node " + quote(f) },
	".ts": func(f, _ string) string { return "ts-node " + quote(f) },
	// -u keeps output unbuffered; the pty already makes input() interactive.
	".py": func(f, _ string) string { return "python3 -u " + quote(f) },
	".rb": func(f, _ string) string { return "ruby " + quote(f) },
	".sh": func(f, _ string) string { return "bash " + quote(f) },
	".go": func(f, _ string) string { return "go run " + quote(f) },
	".java": func(f, stem string) string {
		return "javac " + quote(f) + " && java " + quote(stem)
	},
	".c": func(f, stem string) string {
		return "gcc " + quote(f) + " -o " + quote(stem+".out") + " && " + quote("./"+stem+".out")
	},
	".cpp": compileCPP,
	".cc":  compileCPP,
	".rs": func(f, stem string) string {
		return "rustc " + quote(f) + " -o " + quote(stem) + " && " + quote("./"+stem)
	},
}

func compileCPP(f, stem string) string {
	return "g++ " + quote(f) + " -o " + quote(stem+".out") + " && " + quote("./"+stem+".out")
}

// CommandFor returns the command line that runs fileName from the working
// directory. Only the base name is used.
func CommandFor(fileName string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	run, ok := runners[ext]
	if !ok || base == ext {
		return "", fmt.Errorf("%q: %w", fileName, types.ErrUnsupportedFileType)
	}
	return run(base, strings.TrimSuffix(base, filepath.Ext(base))), nil
}

// quote wraps s in single quotes for POSIX shells.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
