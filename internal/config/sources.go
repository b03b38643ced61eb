package config

import (
	"fmt"
	"strings"

	"dario.cat/mergo"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// ResolvedSources returns the configured sources with engine.source_defaults
// filled into any field a source leaves empty. Kind and shape come back in
// their canonical lower-case form. When names is non-empty only
// sources whose display name matches (case-insensitive) are returned, in
// declaration order.
func (c *Config) ResolvedSources(names ...string) ([]types.SourceSpec, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}

	out := make([]types.SourceSpec, 0, len(c.Sources))
	for i, src := range c.Sources {
		if len(want) > 0 && !want[strings.ToLower(src.DisplayName)] {
			continue
		}
		merged := src
		if err := mergo.Merge(&merged, c.Engine.SourceDefaults); err != nil {
			return nil, fmt.Errorf("sources[%d]: merge defaults: %w", i, err)
		}
		kind, err := types.ParseAcquisitionKind(string(merged.AcquisitionKind))
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		shape, err := types.ParseDocumentShape(string(merged.Shape))
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		merged.AcquisitionKind = kind
		merged.Shape = shape
		if merged.DisplayName == "" {
			merged.DisplayName = merged.EntryURL
		}
		out = append(out, merged)
	}

	if len(want) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("no configured source matches %v", names)
	}
	return out, nil
}
