// Package archive writes ledger snapshots to durable sinks.
//
// A Sink stores opaque named objects. Sinks are registered by name (see
// Register) so the server and CLI can pick one from configuration; the
// file and s3 subpackages register themselves on import.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

var (
	// ErrNotFound indicates the named object does not exist in the sink.
	ErrNotFound = errors.New("archive object not found")
	// ErrClosed indicates the sink has been closed.
	ErrClosed = errors.New("archive sink closed")
)

// Sink is a destination for snapshot objects.
type Sink interface {
	// Put stores data under name, replacing any existing object.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the object stored under name or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// Format is the encoding of an archived snapshot.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown archive format %q (want json or yaml)", s)
}

// Encode serializes a snapshot. v is any value with json and yaml tags,
// normally a *physical.Snapshot or its transport mirror.
func Encode(v any, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unknown archive format %q", format)
}

// ObjectName names the snapshot taken at seq, e.g.
// snapshot-00000000000000000042-20260102T150405Z.json.
func ObjectName(seq uint64, at time.Time, format Format) string {
	if format == "" {
		format = FormatJSON
	}
	return fmt.Sprintf("snapshot-%020d-%s.%s", seq, at.UTC().Format("20060102T150405Z"), format)
}
