package links

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadFile reads a link list: one URL per line. Blank lines and lines
// starting with '#' are returned as empty strings so indices still match
// line numbers.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening link file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read is ReadFile over an arbitrary reader.
func Read(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			line = ""
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading link file: %w", err)
	}
	return lines, nil
}
