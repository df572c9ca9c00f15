// Package knowledge holds the static hardware/algorithm graph and the
// strategy inference that reads it.
//
// A Base is built once from a node/edge definition and never mutated
// afterwards, so concurrent readers need no synchronization. Nodes live in one
// map keyed by id and outgoing edges in a second map keyed by source id.
package knowledge

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// SchemaConstraint is the range of schema_version values this package reads.
const SchemaConstraint = "^1"

// Node is a graph vertex: a device, an algorithm, a technique.
type Node struct {
	ID         string         `json:"id" yaml:"id" toml:"id"`
	Type       string         `json:"type" yaml:"type" toml:"type"`
	Label      string         `json:"label" yaml:"label" toml:"label"`
	Properties map[string]any `json:"properties" yaml:"properties" toml:"properties"`
}

// Edge is a directed, labelled relationship between two nodes.
type Edge struct {
	Source       string         `json:"source" yaml:"source" toml:"source"`
	Target       string         `json:"target" yaml:"target" toml:"target"`
	Relationship string         `json:"relationship" yaml:"relationship" toml:"relationship"`
	Properties   map[string]any `json:"properties" yaml:"properties" toml:"properties"`
}

// Document is the on-disk shape of a knowledge source.
type Document struct {
	SchemaVersion string `json:"schema_version,omitempty" yaml:"schema_version,omitempty" toml:"schema_version,omitempty"`
	Nodes         []Node `json:"nodes" yaml:"nodes" toml:"nodes"`
	Edges         []Edge `json:"edges" yaml:"edges" toml:"edges"`
}

// Format is a knowledge source encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errors.Newf("unsupported knowledge source extension %q", filepath.Ext(path))
	}
}

// Stats summarizes a loaded base.
type Stats struct {
	Nodes   int
	Edges   int
	Sources int // nodes with at least one outgoing edge
}

// Base is the read-only knowledge graph.
type Base struct {
	nodes         map[string]Node
	edgesBySource map[string][]Edge
	edgeCount     int
}

// Load reads and parses path. Every failure is marked ErrKnowledgeUnavailable
// so the caller can degrade to running without a base.
func Load(path string, log *zap.SugaredLogger) (*Base, error) {
	log = logger.OrNop(log, "knowledge")
	log.Infow("Loading knowledge graph", logger.FieldPath, path)

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrKnowledgeUnavailable)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read knowledge source %s", path), errors.ErrKnowledgeUnavailable)
	}

	b, err := Parse(data, format)
	if err != nil {
		return nil, errors.WithDetailf(err, "source: %s", path)
	}

	st := b.Stats()
	log.Infow("Knowledge graph loaded", "nodes", st.Nodes, "edges", st.Edges)
	return b, nil
}

// Parse decodes data in the given format and builds a Base.
func Parse(data []byte, format Format) (*Base, error) {
	var doc Document
	var err error

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		_, err = toml.Decode(string(data), &doc)
	default:
		err = errors.Newf("unknown knowledge format %q", format)
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to parse %s knowledge source", format), errors.ErrKnowledgeUnavailable)
	}

	if err := checkSchema(doc.SchemaVersion); err != nil {
		return nil, errors.Mark(err, errors.ErrKnowledgeUnavailable)
	}

	return New(doc.Nodes, doc.Edges), nil
}

func checkSchema(version string) error {
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(err, "invalid schema_version %q", version)
	}
	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return errors.Wrap(err, "invalid schema constraint")
	}
	if !c.Check(v) {
		return errors.WithHintf(
			errors.Newf("schema_version %s not supported", v),
			"this build reads schema versions matching %s", SchemaConstraint)
	}
	return nil
}

// New builds a Base from already-decoded nodes and edges. A later node with a
// duplicate id replaces the earlier one; edge order per source is preserved.
func New(nodes []Node, edges []Edge) *Base {
	b := &Base{
		nodes:         make(map[string]Node, len(nodes)),
		edgesBySource: make(map[string][]Edge),
	}
	for _, n := range nodes {
		b.nodes[n.ID] = n
	}
	for _, e := range edges {
		b.edgesBySource[e.Source] = append(b.edgesBySource[e.Source], e)
	}
	b.edgeCount = len(edges)
	return b
}

// Node returns the node with id.
func (b *Base) Node(id string) (Node, bool) {
	if b == nil {
		return Node{}, false
	}
	n, ok := b.nodes[id]
	return n, ok
}

// Related returns the outgoing edges of id in definition order.
func (b *Base) Related(id string) []Edge {
	if b == nil {
		return nil
	}
	return b.edgesBySource[id]
}

// DeviceSpecs returns the property map of id.
func (b *Base) DeviceSpecs(id string) (map[string]any, bool) {
	n, ok := b.Node(id)
	if !ok {
		return nil, false
	}
	return n.Properties, true
}

// Stats returns node and edge counts.
func (b *Base) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		Nodes:   len(b.nodes),
		Edges:   b.edgeCount,
		Sources: len(b.edgesBySource),
	}
}
