package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads a plan file (JSON or YAML, chosen by extension) into a Plan.
// The file layout is the external input contract: max_resources_in_parallel
// plus a projects map.
func Load(path string) (*Plan, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser

	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported plan file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("plan file not found: %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	var pl Plan
	if err := k.UnmarshalWithConf("", &pl, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	if pl.MaxResourcesInParallel < 0 {
		return nil, &InvalidFieldError{Field: "max_resources_in_parallel", Value: pl.MaxResourcesInParallel}
	}

	return &pl, nil
}
