package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the current engine-config schema version. Stored
// documents carry it so older snapshots can be migrated on load.
const SchemaVersion = "1.1.0"

// MigrationFunc upgrades an engine config from one schema version.
type MigrationFunc func(*EngineConfig) error

// migrations maps source version to migration functions.
var migrations = map[string]MigrationFunc{
	// 1.0 configs predate per-signal toggles.
	"1.1.0": migrateSignalToggles,
}

func migrateSignalToggles(cfg *EngineConfig) error {
	if len(cfg.EnabledSignals) == 0 {
		cfg.EnabledSignals = DefaultEngineConfig().EnabledSignals
	}
	return nil
}

// Migrate upgrades an engine configuration to the current schema
// version.
func Migrate(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseSchemaVersion(cfg.SchemaVersion)
	if err != nil {
		return err
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("config schema version %s is newer than supported version %s",
			cfg.SchemaVersion, SchemaVersion)
	}

	for version, migrate := range migrations {
		migrationVersion, err := semver.NewVersion(version)
		if err != nil {
			continue
		}

		if current.LessThan(migrationVersion) {
			if err := migrate(cfg); err != nil {
				return fmt.Errorf("migration to %s failed: %w", version, err)
			}
		}
	}

	cfg.SchemaVersion = SchemaVersion

	return nil
}

// CheckCompatibility checks whether a stored config can be migrated to
// the current schema version.
func CheckCompatibility(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.SchemaVersion == "" {
		return fmt.Errorf("missing schema version")
	}

	current, err := parseSchemaVersion(cfg.SchemaVersion)
	if err != nil {
		return err
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("config requires schema version %s, but only %s is supported",
			cfg.SchemaVersion, SchemaVersion)
	}

	if current.LessThan(target) && current.Major() != target.Major() {
		return fmt.Errorf("no migration path from version %s to %s",
			cfg.SchemaVersion, SchemaVersion)
	}

	return nil
}

func parseSchemaVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		// Tolerate short version strings like "1.0".
		v, err = semver.NewVersion(raw + ".0")
		if err != nil {
			return nil, fmt.Errorf("invalid schema version: %s", raw)
		}
	}
	return v, nil
}
