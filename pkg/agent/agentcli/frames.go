package agentcli

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// readFrames parses a capture: one report per line as hex, optionally
// separated by spaces or colons. Blank lines and lines starting with # are
// skipped.
func readFrames(r io.Reader) ([][]byte, error) {
	var frames [][]byte
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(text)
		frame, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	return frames, nil
}

// openInput returns stdin for an empty path or "-".
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
