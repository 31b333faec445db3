package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Distractor is a non-target object spawned with the given probability.
type Distractor struct {
	ObjectID         string  `yaml:"id" json:"id" validate:"required"`
	SpawnProbability float64 `yaml:"probability" json:"probability" validate:"gte=0,lte=1"`
}

// ParseDistractor reads the "id:probability" form.
func ParseDistractor(s string) (Distractor, error) {
	id, p, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Distractor{}, fmt.Errorf("distractor %q: want id:probability", s)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Distractor{}, fmt.Errorf("distractor %q: empty id", s)
	}
	prob, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
	if err != nil {
		return Distractor{}, fmt.Errorf("distractor %q: invalid probability: %w", s, err)
	}
	if math.IsNaN(prob) {
		return Distractor{}, fmt.Errorf("distractor %q: probability is not a number", s)
	}
	return Distractor{ObjectID: id, SpawnProbability: prob}, nil
}

func (d Distractor) String() string {
	return d.ObjectID + ":" + strconv.FormatFloat(d.SpawnProbability, 'g', -1, 64)
}

// UnmarshalYAML accepts both "id:probability" scalars and {id, probability} maps.
func (d *Distractor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseDistractor(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = parsed
		return nil
	}
	type plain Distractor
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = Distractor(p)
	return nil
}

// FormatDistractors renders a distractor list in the "a:0.5,b:0.3" form
// handed to the simulator.
func FormatDistractors(ds []Distractor) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}
