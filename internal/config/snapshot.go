package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ExportFormat specifies the output format for config export.
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// SnapshotMetadata describes an exported engine configuration.
type SnapshotMetadata struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	SchemaVersion string    `json:"schema_version" yaml:"schema_version"`
	ExportedAt    time.Time `json:"exported_at" yaml:"exported_at"`
	Source        string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// Snapshot is a portable engine configuration document, used to move
// tuned configs between environments.
type Snapshot struct {
	Metadata SnapshotMetadata `json:"metadata" yaml:"metadata"`
	Engine   EngineConfig     `json:"engine" yaml:"engine"`
}

// ExportOptions configures snapshot export behaviour.
type ExportOptions struct {
	Format      ExportFormat
	PrettyPrint bool
	AddComments bool
}

// DefaultExportOptions returns the default export options.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:      FormatYAML,
		PrettyPrint: true,
		AddComments: true,
	}
}

// Export serializes an engine configuration snapshot.
func Export(cfg *EngineConfig, name string, opts ExportOptions) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	snap := Snapshot{
		Metadata: SnapshotMetadata{
			ID:            uuid.New().String(),
			Name:          name,
			SchemaVersion: SchemaVersion,
			ExportedAt:    time.Now().UTC(),
			Source:        "export",
		},
		Engine: *cfg,
	}
	snap.Engine.SchemaVersion = SchemaVersion

	switch opts.Format {
	case FormatYAML:
		return exportToYAML(&snap, opts)
	case FormatJSON:
		return exportToJSON(&snap, opts)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

func exportToYAML(snap *Snapshot, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.AddComments {
		buf.WriteString("# KumoTrade Engine Configuration\n")
		buf.WriteString(fmt.Sprintf("# Schema Version: %s\n", snap.Metadata.SchemaVersion))
		buf.WriteString(fmt.Sprintf("# Exported: %s\n", snap.Metadata.ExportedAt.Format(time.RFC3339)))
		buf.WriteString("\n")
	}

	encoder := yaml.NewEncoder(&buf)
	if opts.PrettyPrint {
		encoder.SetIndent(2)
	}

	if err := encoder.Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode config to YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(snap *Snapshot, opts ExportOptions) ([]byte, error) {
	if opts.PrettyPrint {
		return json.MarshalIndent(snap, "", "  ")
	}
	return json.Marshal(snap)
}

// ExportToFile exports an engine config snapshot to a file. The format
// is inferred from the extension when not set explicitly.
func ExportToFile(cfg *EngineConfig, name, path string, opts ExportOptions) error {
	if opts.Format == "" {
		switch filepath.Ext(path) {
		case ".json":
			opts.Format = FormatJSON
		default:
			opts.Format = FormatYAML
		}
	}

	data, err := Export(cfg, name, opts)
	if err != nil {
		return fmt.Errorf("failed to export config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Import deserializes a snapshot from YAML or JSON, migrates it to the
// current schema and validates it.
func Import(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty config data")
	}

	// First non-whitespace byte distinguishes JSON from YAML.
	isJSON := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		isJSON = b == '{' || b == '['
		break
	}

	var snap Snapshot
	if isJSON {
		if err := json.Unmarshal(data, &snap); err != nil {
			if yamlErr := yaml.Unmarshal(data, &snap); yamlErr != nil {
				return nil, fmt.Errorf("failed to parse as JSON (%v) or YAML (%v)", err, yamlErr)
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &snap); err != nil {
			if jsonErr := json.Unmarshal(data, &snap); jsonErr != nil {
				return nil, fmt.Errorf("failed to parse as YAML (%v) or JSON (%v)", err, jsonErr)
			}
		}
	}

	if snap.Engine.SchemaVersion == "" {
		snap.Engine.SchemaVersion = snap.Metadata.SchemaVersion
	}
	if err := CheckCompatibility(&snap.Engine); err != nil {
		return nil, NewConfigError("engine.schema_version", err.Error())
	}
	if err := Migrate(&snap.Engine); err != nil {
		return nil, NewConfigError("engine.schema_version", err.Error())
	}
	if err := snap.Engine.Validate(); err != nil {
		return nil, err
	}

	if snap.Metadata.Source == "" {
		snap.Metadata.Source = "import"
	}

	return &snap, nil
}

// ImportFromFile imports an engine config snapshot from a file.
func ImportFromFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Import(data)
}
