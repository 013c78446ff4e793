package registry

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

const kindsYaml string = `
kinds:
  - kind: trail
    schema:
      - name: name
        type: text
      - name: difficulty
        type: enum
        values: [easy, medium, hard]
      - name: length
        type: number
      - name: path
        type: geometry
        spatialType: LineString
    displayFields: [name, length]
    documentTemplate: trail-sheet
    policy:
      name: role
      role: editor
  - kind: poi
    schema:
      - name: name
        type: text
      - name: location
        type: geometry
        spatialType: Point
`

func TestLoadConfiguration(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadConfiguration(bytes.NewBufferString(kindsYaml))
	is.NoErr(err)

	is.Equal(len(cfg.Kinds), 2)
	is.Equal(cfg.Kinds[0].Kind, "trail")
	is.Equal(cfg.Kinds[0].Policy.Role, "editor")
	is.Equal(cfg.Kinds[1].Schema[1].SpatialType, "Point")
}

func TestApplyRegistersConfiguredKinds(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadConfiguration(bytes.NewBufferString(kindsYaml))
	is.NoErr(err)

	r := New()
	is.NoErr(cfg.Apply(r))

	d, err := r.Resolve("trail")
	is.NoErr(err)
	is.Equal(d.DocumentTemplate, "trail-sheet")
	is.True(d.Policy != nil)

	d, err = r.Resolve("poi")
	is.NoErr(err)
	is.True(d.Policy == nil)
}

func TestApplyRejectsUnknownPolicyNames(t *testing.T) {
	is := is.New(t)

	cfg := &Config{Kinds: []KindConfig{{
		Kind:   "trail",
		Schema: []AttributeConfig{{Name: "name", Type: "text"}},
		Policy: PolicyConfig{Name: "nope"},
	}}}

	is.True(cfg.Apply(New()) != nil)
}

func TestApplyRejectsRolePolicyWithoutRole(t *testing.T) {
	is := is.New(t)

	cfg := &Config{Kinds: []KindConfig{{
		Kind:   "trail",
		Schema: []AttributeConfig{{Name: "name", Type: "text"}},
		Policy: PolicyConfig{Name: "role"},
	}}}

	is.True(cfg.Apply(New()) != nil)
}
