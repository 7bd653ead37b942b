// Package conversation holds the per-run chat transcripts, one append-only
// message log per named channel, persisted as a single YAML document so a
// run can be resumed.
package conversation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/harukawa/deepresearch/internal/llm"
)

// Channel names used by the research pipeline.
const (
	ChannelProposer    = "proposer"
	ChannelCritic      = "critic"
	ChannelPreResearch = "pre_research"
	ChannelCollection  = "collection"
)

// Store maps channel names to ordered message logs. Messages are only ever
// appended; the insertion order is the literal transcript sent to the model.
type Store struct {
	mu       sync.Mutex
	channels map[string][]llm.Message
	path     string
	logger   *zap.Logger
}

// New creates an empty store whose snapshots are written under dir with a
// timestamp-derived file name.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	path := filepath.Join(dir, time.Now().Format("20060102_150405")+".yaml")
	return &Store{
		channels: make(map[string][]llm.Message),
		path:     path,
		logger:   logger,
	}, nil
}

// Resume loads a previously persisted conversation document. Subsequent
// saves keep writing to the resumed file.
func Resume(path string, logger *zap.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation file: %w", err)
	}
	channels := make(map[string][]llm.Message)
	if err := yaml.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("parse conversation file: %w", err)
	}
	return &Store{channels: channels, path: path, logger: logger}, nil
}

// Path returns the file the store persists to.
func (s *Store) Path() string { return s.path }

// Append adds one message to the end of a channel.
func (s *Store) Append(channel string, msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = append(s.channels[channel], msg)
}

// Reset replaces a channel with the given messages. Used when a stage seeds
// its channel from scratch.
func (s *Store) Reset(channel string, msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = append([]llm.Message(nil), msgs...)
}

// Messages returns a copy of a channel's log.
func (s *Store) Messages(channel string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.channels[channel]...)
}

// Len returns the number of messages in a channel.
func (s *Store) Len(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels[channel])
}

// Save writes the whole document to disk, all channels keyed by name. The
// message struct field order puts role before content, which keeps the YAML
// readable.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stable channel order in the emitted document.
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range names {
		var key, value yaml.Node
		key.SetString(name)
		if err := value.Encode(s.channels[name]); err != nil {
			return fmt.Errorf("encode channel %q: %w", name, err)
		}
		doc.Content = append(doc.Content, &key, &value)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write conversation file: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("Conversation saved", zap.String("path", s.path))
	}
	return nil
}
