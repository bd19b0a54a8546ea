package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chazu/kerf/pkg/feature"
)

// MaxSourceSize bounds script and feature files.
const MaxSourceSize = 4 << 20

// featureFile is the YAML form of a script.
type featureFile struct {
	Element  *feature.Element  `yaml:"element"`
	Features []feature.Feature `yaml:"features"`
}

// DecodeYAML reads a feature file:
//
//	element:
//	  id: b1
//	  profile: ibeam
//	  dimensions: {length: 6000, height: 300, width: 150}
//	features:
//	  - {id: h1, type: hole, position: {x: 100}, params: {diameter: 18}}
//
// Features without an id get one from DeriveID.
func DecodeYAML(data []byte) (*Script, error) {
	var ff featureFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ff); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("engine: decode yaml: %w", err)
	}

	if el := ff.Element; el != nil {
		if el.ID == "" {
			return nil, fmt.Errorf("engine: element id is required")
		}
		if el.Profile != "" {
			p, err := feature.ParseProfile(string(el.Profile))
			if err != nil {
				return nil, fmt.Errorf("engine: element %s: %w", el.ID, err)
			}
			el.Profile = p
		}
	}
	for i := range ff.Features {
		f := &ff.Features[i]
		if !f.Type.Known() {
			return nil, fmt.Errorf("engine: features[%d]: unknown type %s", i, f.Type)
		}
		if f.ID != "" {
			continue
		}
		id, err := DeriveID(*f, i)
		if err != nil {
			return nil, err
		}
		f.ID = id
	}
	return &Script{Element: ff.Element, Features: ff.Features}, nil
}

// IsYAML reports whether path names a YAML feature file.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// EvaluateFile loads path as a YAML feature file or, for any other
// extension, evaluates it as a script. Decode failures of YAML files are
// reported as a single EvalError.
func (e *Engine) EvaluateFile(path string) (*Script, []EvalError, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	if info.Size() > MaxSourceSize {
		return nil, nil, fmt.Errorf("engine: %s too large: %d bytes (max %d)", path, info.Size(), MaxSourceSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	if IsYAML(path) {
		s, err := DecodeYAML(data)
		if err != nil {
			return nil, []EvalError{{Message: err.Error()}}, nil
		}
		return s, nil, nil
	}
	return e.Evaluate(string(data))
}
