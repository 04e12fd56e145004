package rules

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadGroundTruth reads a ground truth JSONL file.
func LoadGroundTruth(path string) ([]GroundTruthEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ground truth: %w", err)
	}
	defer f.Close()
	return ReadGroundTruth(f)
}

// ReadGroundTruth decodes one GroundTruthEntry per non-blank line.
func ReadGroundTruth(r io.Reader) ([]GroundTruthEntry, error) {
	var out []GroundTruthEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e GroundTruthEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("ground truth line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ground truth: %w", err)
	}
	return out, nil
}
