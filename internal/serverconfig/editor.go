// Package serverconfig edits the server configuration file seeded on first
// run. Edits go through the YAML node tree so comments and key order
// survive a round trip.
package serverconfig

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/goletan/servicehost/internal/fsutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrConfigMissing is returned when the configuration file does not exist.
	ErrConfigMissing = errors.New("server configuration missing")
	// ErrPathNotFound is returned by Get for a path that does not resolve.
	ErrPathNotFound = errors.New("configuration path not found")
	// ErrInvalidPath is returned for empty paths or paths crossing a scalar.
	ErrInvalidPath = errors.New("invalid configuration path")
	// ErrNotLoaded is returned when the editor is used before Load.
	ErrNotLoaded = errors.New("configuration not loaded")
)

// Editor holds the parsed configuration of one file.
type Editor struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	doc *yaml.Node
}

// NewEditor creates an editor for the file at path. Nothing is read until Load.
func NewEditor(path string, log *zap.Logger) *Editor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Editor{path: path, logger: log.Named("serverconfig")}
}

// Path returns the edited file.
func (e *Editor) Path() string {
	return e.path
}

// Load reads and parses the file, replacing any unsaved edits.
func (e *Editor) Load() error {
	data, err := e.Raw()
	if err != nil {
		return err
	}
	doc, err := parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", e.path, err)
	}

	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()

	e.logger.Debug("Loaded server configuration", zap.String("path", e.path))
	return nil
}

// Loaded reports whether a document is held.
func (e *Editor) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc != nil
}

// Get decodes the value at a dotted path such as "server.login_port" or
// "worlds.0.exp_rate". An empty path returns the whole document.
func (e *Editor) Get(path string) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.doc == nil {
		return nil, ErrNotLoaded
	}
	node := e.doc.Content[0]
	if path != "" {
		var err error
		if node, err = lookup(node, splitPath(path)); err != nil {
			return nil, fmt.Errorf("%w: %s", err, path)
		}
	}

	var out any
	if err := node.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return out, nil
}

// Set replaces the value at path, creating missing mapping keys on the way.
// Comments attached to the replaced value are kept. Changes stay in memory
// until Save.
func (e *Editor) Set(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return ErrInvalidPath
	}

	var repl yaml.Node
	if err := repl.Encode(normalize(value)); err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return ErrNotLoaded
	}
	if err := assign(e.doc.Content[0], segs, &repl); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}
	e.logger.Info("Configuration value changed", zap.String("path", path))
	return nil
}

// Save writes the document back to disk atomically.
func (e *Editor) Save() error {
	e.mu.RLock()
	doc := e.doc
	var buf bytes.Buffer
	var err error
	if doc != nil {
		err = encode(&buf, doc)
	}
	e.mu.RUnlock()

	if doc == nil {
		return ErrNotLoaded
	}
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if _, err := fsutil.WriteAtomic(e.path, &buf, 0o644); err != nil {
		return err
	}
	e.logger.Info("Saved server configuration", zap.String("path", e.path))
	return nil
}

// Raw returns the file contents as stored on disk.
func (e *Editor) Raw() ([]byte, error) {
	data, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, e.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.path, err)
	}
	return data, nil
}

// Replace validates data as a YAML mapping and writes it verbatim. This is
// also how a missing configuration is recreated.
func (e *Editor) Replace(data []byte) error {
	doc, err := parse(data)
	if err != nil {
		return fmt.Errorf("rejected configuration: %w", err)
	}
	if _, err := fsutil.WriteAtomic(e.path, bytes.NewReader(data), 0o644); err != nil {
		return err
	}

	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()

	e.logger.Info("Replaced server configuration", zap.String("path", e.path), zap.Int("bytes", len(data)))
	return nil
}

func parse(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("document is empty")
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping")
	}
	return &doc, nil
}

func encode(buf *bytes.Buffer, doc *yaml.Node) error {
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func splitPath(path string) []string {
	path = strings.Trim(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func lookup(node *yaml.Node, segs []string) (*yaml.Node, error) {
	for _, seg := range segs {
		next, err := child(node, seg)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, ErrPathNotFound
		}
		node = next
	}
	return node, nil
}

// child returns the node under seg, or nil when a mapping lacks the key.
func child(node *yaml.Node, seg string) (*yaml.Node, error) {
	switch node.Kind {
	case yaml.MappingNode:
		if i := keyIndex(node, seg); i >= 0 {
			return node.Content[i+1], nil
		}
		return nil, nil
	case yaml.SequenceNode:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(node.Content) {
			return nil, ErrPathNotFound
		}
		return node.Content[i], nil
	default:
		return nil, ErrInvalidPath
	}
}

func assign(node *yaml.Node, segs []string, repl *yaml.Node) error {
	for i, seg := range segs {
		last := i == len(segs)-1

		if node.Kind == yaml.SequenceNode {
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node.Content) {
				return ErrPathNotFound
			}
			if last {
				node.Content[idx] = keepComments(node.Content[idx], repl)
				return nil
			}
			node = node.Content[idx]
			continue
		}
		if node.Kind != yaml.MappingNode {
			return ErrInvalidPath
		}

		k := keyIndex(node, seg)
		if k < 0 {
			next := repl
			if !last {
				next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: seg},
				next)
			node = next
			if last {
				return nil
			}
			continue
		}
		if last {
			node.Content[k+1] = keepComments(node.Content[k+1], repl)
			return nil
		}
		node = node.Content[k+1]
	}
	return nil
}

func keyIndex(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func keepComments(old, repl *yaml.Node) *yaml.Node {
	if repl.HeadComment == "" {
		repl.HeadComment = old.HeadComment
	}
	if repl.LineComment == "" {
		repl.LineComment = old.LineComment
	}
	if repl.FootComment == "" {
		repl.FootComment = old.FootComment
	}
	return repl
}

// normalize converts values decoded from JSON so integers stay integers
// in the written YAML.
func normalize(v any) any {
	switch x := v.(type) {
	case interface{ Int64() (int64, error) }:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, ok := v.(interface{ Float64() (float64, error) }); ok {
			if n, err := f.Float64(); err == nil {
				return normalize(n)
			}
		}
		return v
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
