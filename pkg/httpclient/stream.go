package httpclient

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// SSEDone is the terminal sentinel on SSE completion streams.
const SSEDone = "[DONE]"

// ScanSSE reads server-sent events from r and invokes handle with each
// data frame's decoded JSON object. Scanning stops at EOF, at the [DONE]
// sentinel, or when handle returns false. Blank lines and non-data fields
// are skipped; frames that are not valid JSON objects are skipped too, as
// providers interleave keep-alive comments.
func ScanSSE(r io.Reader, handle func(event map[string]any) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == SSEDone {
			return nil
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		if !handle(event) {
			return nil
		}
	}

	return scanner.Err()
}

// ScanJSONLines reads newline-delimited JSON objects from r and invokes
// handle with each. Gemini's streaming endpoint wraps the sequence in a
// JSON array; leading "[" / separating "," / trailing "]" lines and
// prefixes are tolerated.
func ScanJSONLines(r io.Reader, handle func(event map[string]any) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "[")
		line = strings.TrimPrefix(line, ",")
		line = strings.TrimSuffix(line, "]")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		if !handle(event) {
			return nil
		}
	}

	return scanner.Err()
}
