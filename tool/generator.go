package tool

import "math/rand/v2"

// Word lists for default session names, "Swift Compiler" and the like.
var (
	nameAdjectives = []string{
		"Async", "Atomic", "Binary", "Brisk", "Cached", "Concurrent", "Curly",
		"Eager", "Elegant", "Immutable", "Lazy", "Lean", "Nested", "Nimble",
		"Parallel", "Pure", "Quiet", "Recursive", "Silent", "Static", "Steady",
		"Swift", "Tidy", "Typed", "Verbose",
	}
	nameNouns = []string{
		"Buffer", "Bytecode", "Closure", "Commit", "Compiler", "Cursor",
		"Debugger", "Function", "Iterator", "Kernel", "Lambda", "Linter",
		"Module", "Parser", "Pipeline", "Pointer", "Refactor", "Semicolon",
		"Snippet", "Socket", "Stack", "Terminal", "Thread", "Tuple",
	}
)

func pick(words []string) string {
	return words[rand.IntN(len(words))]
}

// RandomSessionName names a session whose creator left the name empty.
func RandomSessionName() string {
	return pick(nameAdjectives) + " " + pick(nameNouns)
}
