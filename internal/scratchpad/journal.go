package scratchpad

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// appendJournal writes one entry as a single JSON line. The file is opened
// per append so a crash never leaves a dangling handle.
func appendJournal(path string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("scratchpad: encode entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("scratchpad: open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("scratchpad: append: %w", err)
	}
	return nil
}

// ReadJournal reads every entry back from a journal file, in order.
// Blank lines are skipped; a malformed line is an error since the journal
// is append-only and should never contain partial garbage mid-file.
func ReadJournal(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scratchpad: open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("scratchpad: decode journal line: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scratchpad: read journal: %w", err)
	}
	return entries, nil
}
