package registry

import (
	"fmt"
	"io"

	"github.com/bouttier/mapentity/pkg/mapentity/geom"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	yaml "gopkg.in/yaml.v2"
)

type AttributeConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Values      []string `yaml:"values"`
	SpatialType string   `yaml:"spatialType"`
}

type PolicyConfig struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

type KindConfig struct {
	Kind             string            `yaml:"kind"`
	Schema           []AttributeConfig `yaml:"schema"`
	DisplayFields    []string          `yaml:"displayFields"`
	DocumentTemplate string            `yaml:"documentTemplate"`
	Policy           PolicyConfig      `yaml:"policy"`
}

type Config struct {
	Kinds []KindConfig `yaml:"kinds"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)

	return cfg, err
}

// Apply registers every configured kind. Registration errors are
// fatal to startup and returned as is.
func (cfg *Config) Apply(r *Registry) error {
	for _, kc := range cfg.Kinds {
		d := Descriptor{
			Kind:             kc.Kind,
			DisplayFields:    kc.DisplayFields,
			DocumentTemplate: kc.DocumentTemplate,
		}

		for _, ac := range kc.Schema {
			d.Schema = append(d.Schema, Attribute{
				Name:        ac.Name,
				Type:        AttributeType(ac.Type),
				Values:      ac.Values,
				SpatialType: geom.Type(ac.SpatialType),
			})
		}

		switch kc.Policy.Name {
		case "", "default":
			d.Policy = nil
		case "scope":
			d.Policy = policy.ScopeRestricted()
		case "role":
			if kc.Policy.Role == "" {
				return fmt.Errorf("kind %q selects a role policy without naming a role", kc.Kind)
			}

			d.Policy = policy.RoleRestricted(kc.Policy.Role)
		default:
			return fmt.Errorf("kind %q selects unknown policy %q", kc.Kind, kc.Policy.Name)
		}

		if err := r.Register(d); err != nil {
			return err
		}
	}

	return nil
}
