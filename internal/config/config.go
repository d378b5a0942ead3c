// Package config loads the optional .cq.yaml configuration file:
// default extension sets per language, default context line counts,
// and default include/exclude path filters. Grounded on the teacher's
// lint/lint.go parseConfigurationFile.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cqlang/cq/internal/errs"
)

// Config is the top-level shape of .cq.yaml.
type Config struct {
	Extensions struct {
		C   []string `yaml:"c"`
		CPP []string `yaml:"cpp"`
	} `yaml:"extensions"`
	Context struct {
		Before int `yaml:"before"`
		After  int `yaml:"after"`
	} `yaml:"context"`
	Include string `yaml:"include"`
	Exclude string `yaml:"exclude"`
}

// Default returns the built-in defaults used when no .cq.yaml is
// present or no path is given.
func Default() Config {
	var c Config
	c.Extensions.C = []string{".c", ".h"}
	c.Extensions.CPP = []string{".cc", ".cpp", ".cxx", ".h", ".hpp"}
	c.Context.Before = 5
	c.Context.After = 5
	return c
}

// Load reads and parses a .cq.yaml file at path, starting from
// Default() so fields absent from the file keep their default values.
// A file that cannot be opened or parsed is an InputUnreadable error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errs.New(errs.InputUnreadable, "open config "+path, err)
	}
	defer f.Close()

	config := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, errs.New(errs.InputUnreadable, "parse config "+path, err)
	}
	return config, nil
}
