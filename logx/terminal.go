package logx

import "os"

// isTerminal reports whether f looks like an interactive terminal. It is a
// best-effort heuristic (char-device check) rather than a full isatty
// implementation, since logx has no ioctl dependency of its own.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
