package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogFS embed.FS

// Prompt is a rendered prompt ready for the hosted model. SchemaName and
// Schema are empty for plain-text prompts.
type Prompt struct {
	Name       string
	Version    int
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// Structured reports whether the prompt expects a JSON object back.
func (p Prompt) Structured() bool { return p.SchemaName != "" && p.Schema != nil }

type yamlCatalog struct {
	Catalog string       `yaml:"catalog"`
	Version int          `yaml:"version"`
	Prompts []yamlPrompt `yaml:"prompts"`
}

type yamlPrompt struct {
	Name       string `yaml:"name"`
	Version    int    `yaml:"version"`
	SchemaName string `yaml:"schema_name"`
	System     string `yaml:"system"`
	User       string `yaml:"user"`
}

type compiled struct {
	name       PromptName
	version    int
	schemaName string
	schema     func() map[string]any
	system     *template.Template
	user       *template.Template
}

var (
	registryOnce sync.Once
	registry     map[PromptName]compiled
	registryErr  error
)

func load() (map[PromptName]compiled, error) {
	registryOnce.Do(func() {
		registry, registryErr = compileCatalog()
	})
	return registry, registryErr
}

func compileCatalog() (map[PromptName]compiled, error) {
	data, err := catalogFS.ReadFile("catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	var cat yamlCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	out := make(map[PromptName]compiled, len(cat.Prompts))
	for _, p := range cat.Prompts {
		name := PromptName(strings.TrimSpace(p.Name))
		if name == "" {
			return nil, fmt.Errorf("prompt catalog: entry without name")
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("prompt catalog: duplicate prompt %s", name)
		}
		if p.Version <= 0 {
			return nil, fmt.Errorf("invalid version for %s", name)
		}
		c := compiled{name: name, version: p.Version, schemaName: strings.TrimSpace(p.SchemaName)}
		if c.schemaName != "" {
			fn, ok := schemaFuncs[c.schemaName]
			if !ok {
				return nil, fmt.Errorf("%s: unknown schema %s", name, c.schemaName)
			}
			c.schema = fn
		}
		if c.system, err = template.New("system").Option("missingkey=zero").Parse(p.System); err != nil {
			return nil, fmt.Errorf("%s system template parse: %w", name, err)
		}
		if c.user, err = template.New("user").Option("missingkey=zero").Parse(p.User); err != nil {
			return nil, fmt.Errorf("%s user template parse: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

func render(t *template.Template, in Input) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// Build renders the named prompt.
func Build(name PromptName, in Input) (Prompt, error) {
	reg, err := load()
	if err != nil {
		return Prompt{}, err
	}
	c, ok := reg[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	if err := validate(name, in); err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", string(name), err)
	}
	sys, err := render(c.system, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s system render: %w", string(name), err)
	}
	user, err := render(c.user, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s user render: %w", string(name), err)
	}
	p := Prompt{
		Name:    string(c.name),
		Version: c.version,
		System:  sys,
		User:    user,
	}
	if c.schema != nil {
		p.SchemaName = c.schemaName
		p.Schema = c.schema()
	}
	return p, nil
}

// Names lists every registered prompt.
func Names() []PromptName {
	reg, err := load()
	if err != nil {
		return nil
	}
	out := make([]PromptName, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	return out
}
