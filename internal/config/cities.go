package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// cityFile is the layout of CITIES_FILE:
//
//	cities:
//	  - Hamburg
//	  - Milano
type cityFile struct {
	Cities []string `yaml:"cities"`
}

// loadCityList returns the cities from CITIES_FILE when set, otherwise the
// comma-separated DEFAULT_CITIES (Hamburg when unset).
func loadCityList() ([]string, error) {
	if path := os.Getenv("CITIES_FILE"); path != "" {
		return LoadCities(path)
	}
	v := os.Getenv("DEFAULT_CITIES")
	if v == "" {
		v = "Hamburg"
	}
	return splitCities(strings.Split(v, ",")), nil
}

// LoadCities reads a YAML city list.
func LoadCities(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}
	var f cityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cities file %s: %w", path, err)
	}
	return splitCities(f.Cities), nil
}

// splitCities trims names and drops blanks and repeats, keeping order.
func splitCities(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
