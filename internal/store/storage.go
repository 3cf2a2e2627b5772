package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/boardkit/dispatch/internal/logger"
)

const (
	// CardsSubdirectory is the subdirectory name for card storage within a workspace.
	CardsSubdirectory = "cards"

	// CardsFilename is the filename for storing cards in JSONL format.
	CardsFilename = "cards.jsonl"
)

// Storage provides persistent card storage in JSONL format, one item per line.
// It is layered under a MemoryStore: items appended to the session store can be
// mirrored to disk and reloaded on the next start.
type Storage struct {
	filePath string
	logger   *logger.Logger
}

// NewStorage creates a Storage rooted at the given workspace directory.
func NewStorage(workspacePath string, log *logger.Logger) *Storage {
	filePath := filepath.Join(workspacePath, CardsSubdirectory, CardsFilename)
	return &Storage{
		filePath: filePath,
		logger:   log,
	}
}

// Load reads items from the JSONL storage file.
// Returns an empty slice if the file doesn't exist. Malformed lines are
// skipped with a logged error rather than failing the whole load.
func (s *Storage) Load() ([]Item, error) {
	_, err := os.Stat(s.filePath)
	if os.IsNotExist(err) {
		return []Item{}, nil
	}
	if err != nil {
		s.logger.Error("failed to stat storage file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, err
	}

	file, err := os.Open(s.filePath)
	if err != nil {
		s.logger.Error("failed to open storage file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, err
	}
	defer file.Close()

	var items []Item
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var item Item
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			s.logger.Error("failed to unmarshal item line", err,
				logger.Field{Key: "file", Value: s.filePath},
				logger.Field{Key: "line", Value: lineNum})
			continue
		}

		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		s.logger.Error("error scanning storage file", err,
			logger.Field{Key: "file", Value: s.filePath})
		return nil, err
	}

	return items, nil
}

// Append adds a new item to the storage file.
func (s *Storage) Append(item Item) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		s.logger.Error("failed to create storage directory", err,
			logger.Field{Key: "dir", Value: filepath.Dir(s.filePath)})
		return err
	}

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Error("failed to open storage file for append", err,
			logger.Field{Key: "file", Value: s.filePath})
		return err
	}
	defer file.Close()

	data, err := json.Marshal(item)
	if err != nil {
		s.logger.Error("failed to marshal item", err,
			logger.Field{Key: "item_id", Value: item.ID})
		return err
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		s.logger.Error("failed to write item", err,
			logger.Field{Key: "item_id", Value: item.ID})
		return err
	}

	return nil
}
