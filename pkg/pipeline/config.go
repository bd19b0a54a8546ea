package pipeline

import (
	"github.com/chazu/kerf/pkg/cache"
	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
)

// Config controls one Pipeline. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	CacheEnabled     bool `json:"cache_enabled" yaml:"cache_enabled" toml:"cache_enabled"`
	CacheMaxEntries  int  `json:"cache_max_entries" yaml:"cache_max_entries" toml:"cache_max_entries" validate:"gte=1"`
	ValidateFeatures bool `json:"validate_features" yaml:"validate_features" toml:"validate_features"`
	OptimizeGeometry bool `json:"optimize_geometry" yaml:"optimize_geometry" toml:"optimize_geometry"`
	MergeVertices    bool `json:"merge_vertices" yaml:"merge_vertices" toml:"merge_vertices"`

	Tolerances feature.Tolerances `json:"tolerances" yaml:"tolerances" toml:"tolerances"`

	// StrictValidation turns validation warnings into errors. The features
	// are still processed; only Success changes.
	StrictValidation bool `json:"strict_validation" yaml:"strict_validation" toml:"strict_validation"`

	// DedupeInFlight makes concurrent applies of the same key share one
	// computation.
	DedupeInFlight bool `json:"dedupe_in_flight" yaml:"dedupe_in_flight" toml:"dedupe_in_flight"`

	// ToolResolution is the marching-cubes cell count of the default
	// kernel. Ignored when WithKernel or WithRegistry is used.
	ToolResolution int `json:"tool_resolution" yaml:"tool_resolution" toml:"tool_resolution" validate:"gte=8,lte=512"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		CacheEnabled:     true,
		CacheMaxEntries:  cache.DefaultMaxEntries,
		ValidateFeatures: true,
		OptimizeGeometry: true,
		MergeVertices:    true,
		Tolerances:       feature.DefaultTolerances(),
		ToolResolution:   sdfx.DefaultMeshCells,
	}
}

// mergeTolerance is the vertex weld distance used by the optimize pass.
const mergeTolerance = 1e-4
