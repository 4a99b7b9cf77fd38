package signature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk signature set shape
type fileFormat struct {
	Signatures []Signature `yaml:"signatures"`
}

// Load builds the signature set: builtins first, then entries from the
// optional YAML file. A file signature whose name matches a builtin
// replaces it; new names are appended. Called once at process start.
func Load(path string) (*Set, error) {
	sigs := Builtin()
	if path == "" {
		return NewSet(sigs)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse signature file: %w", err)
	}

	byName := make(map[string]int, len(sigs))
	for i, s := range sigs {
		byName[s.Name] = i
	}
	for _, s := range ff.Signatures {
		if i, ok := byName[s.Name]; ok {
			sigs[i] = s
			continue
		}
		byName[s.Name] = len(sigs)
		sigs = append(sigs, s)
	}
	return NewSet(sigs)
}
