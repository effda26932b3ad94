package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options holds the choices offered by the wizard keyboards.
type Options struct {
	Fabrics []string `yaml:"fabrics"`
	Sizes   []string `yaml:"sizes"`
}

// DefaultOptions returns the fabrics and sizes offered when no options file is set.
func DefaultOptions() Options {
	return Options{
		Fabrics: []string{
			"algodón", "algodón peinado", "algodon rustico", "lino", "lino viscosa", "viscosa",
			"modal", "frisa", "rústico", "morley", "micromorley", "morley lino",
			"morley lino con lycra", "wafle", "fibrana", "crepe", "crep", "crep sastrero",
			"tull", "tull con stras", "broderie", "bremer", "lycra", "spandex", "hilo spandex",
			"gabardina", "bengalina", "jean", "engomado", "ecocuero", "satén", "saten sastrero",
			"poliéster", "rayón", "hawaii", "hawaii con broderie", "cey", "cey lino", "jersey",
			"sastrero con spandex", "sastrero con lycra", "sastrero barbie",
			"lino morley con lycra", "microfibra con lycra", "crochet algodon con lycra",
			"crochet con lycra", "tylor con lycra", "poplin", "strech con lycra", "rompeviento",
		},
		Sizes: []string{
			"1 ( S )", "2 ( M )", "3 ( L )", "4 ( XL )", "5 ( XXL )", "6 ( XXXL )",
			"7", "8", "9", "10", "11", "12", "unico",
			"36", "38", "40", "42", "44", "46", "48", "50", "52", "54", "56", "58",
		},
	}
}

// LoadOptions reads a YAML options file. Empty lists fall back to the defaults.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read options file: %w", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse options file: %w", err)
	}

	defaults := DefaultOptions()
	opts.Fabrics = dedupe(opts.Fabrics)
	if len(opts.Fabrics) == 0 {
		opts.Fabrics = defaults.Fabrics
	}
	opts.Sizes = dedupe(opts.Sizes)
	if len(opts.Sizes) == 0 {
		opts.Sizes = defaults.Sizes
	}
	return opts, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
