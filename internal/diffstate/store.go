// Package diffstate maintains a local replica of the sportsbook's
// channel state. The upstream transmits a full snapshot per channel
// followed by an ordered stream of JSON-ish patches; this store applies
// them and hands out the current tree. Divergence is self-healing: the
// venue resends full snapshots on its own cadence, so a diff that cannot
// be applied is logged and dropped rather than retried.
package diffstate

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/jcarden/arbscan/internal/domain"
)

// Patch is one mutation of the replicated tree. Path is a slash-delimited
// key sequence into nested objects.
type Patch struct {
	Op    string `json:"op"` // "add", "replace" or "remove"
	Path  string `json:"path"`
	Value any    `json:"value"`
}

const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// Store holds one replicated state tree per channel. Safe for concurrent
// use; each channel is owned by a single dispatcher, but lookups may come
// from anywhere.
type Store struct {
	mu       sync.RWMutex
	channels map[string]map[string]any
	logger   *slog.Logger
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	return &Store{
		channels: make(map[string]map[string]any),
		logger:   logger.With(slog.String("component", "diffstate")),
	}
}

// ApplyFull unconditionally replaces the cached state for channel. Used
// for the first message on a channel and after every reconnect.
func (s *Store) ApplyFull(channel string, state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = state
}

// ApplyDiff applies patches to the channel's tree strictly in order.
// Patches are not transactional: a malformed patch partway through
// leaves the earlier mutations in place, which is acceptable because the
// upstream periodically resends full snapshots. A diff for a channel
// with no base state returns domain.ErrMissingBaseState and mutates
// nothing; the caller is expected to log and drop it.
func (s *Store) ApplyDiff(channel string, patches []Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.channels[channel]
	if !ok {
		return domain.ErrMissingBaseState
	}

	for _, p := range patches {
		switch p.Op {
		case OpAdd, OpReplace:
			applySet(tree, splitPath(p.Path), p.Value)
		case OpRemove:
			applyRemove(tree, splitPath(p.Path))
		default:
			s.logger.Warn("skipping patch with unknown op",
				slog.String("channel", channel),
				slog.String("op", p.Op),
				slog.String("path", p.Path),
			)
		}
	}
	return nil
}

// Get returns the current tree for channel, or false if no snapshot has
// arrived yet. The returned tree is the live replica; callers must treat
// it as read-only.
func (s *Store) Get(channel string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree, ok := s.channels[channel]
	return tree, ok
}

// Reset discards the channel's state. Called on reconnect so diffs are
// refused until a fresh snapshot arrives; resuming diffs against stale
// state is never allowed.
func (s *Store) Reset(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channel)
}

// ResetAll discards every channel.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]map[string]any)
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// applySet walks the tree creating intermediate objects as needed and
// sets the leaf key. An intermediate that exists but is not an object is
// replaced by one; the upstream patch stream treats paths as
// authoritative.
func applySet(tree map[string]any, segments []string, value any) {
	if len(segments) == 0 {
		return
	}
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

// applyRemove walks the tree and deletes the leaf key. A missing
// intermediate segment makes the remove a silent no-op.
func applyRemove(tree map[string]any, segments []string) {
	if len(segments) == 0 {
		return
	}
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	delete(node, segments[len(segments)-1])
}

// Resolve walks a slash-delimited path through a tree and returns the
// value at the leaf. It never mutates the tree; a path that does not
// fully resolve returns false.
func Resolve(tree map[string]any, path string) (any, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	var current any = tree
	for _, seg := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
