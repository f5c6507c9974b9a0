// Package prompt renders the generator and evaluator prompts from their
// template files.
//
// Templates use text/template syntax with a flat set of declared
// placeholders: the generator template may reference {{.property_json}},
// {{.language_name}} and {{.language_code}}; the evaluator template may
// reference {{.html_output}}. All template problems are reported by Load, so
// a process that starts can render every request.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/valpere/listforge/internal/property"
)

const (
	GeneratorFile = "generator_prompt.tmpl"
	EvaluatorFile = "evaluator_prompt.tmpl"

	VarPropertyJSON = "property_json"
	VarLanguageName = "language_name"
	VarLanguageCode = "language_code"
	VarHTMLOutput   = "html_output"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// ConfigurationError is returned by Load for any template that cannot be
// used.
type ConfigurationError struct {
	Template string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("prompt template %s: %v", e.Template, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type templateDef struct {
	file     string
	declared []string
	required string
}

var (
	generatorDef = templateDef{file: GeneratorFile, declared: []string{VarPropertyJSON, VarLanguageName, VarLanguageCode}, required: VarPropertyJSON}
	evaluatorDef = templateDef{file: EvaluatorFile, declared: []string{VarHTMLOutput}, required: VarHTMLOutput}
)

// GeneratorPrompt is a rendered generator prompt together with the values
// substituted into it.
type GeneratorPrompt struct {
	Text         string
	PropertyJSON string
	LanguageName string
	LanguageCode string
}

// Renderer is safe for concurrent use.
type Renderer struct {
	generator *template.Template
	evaluator *template.Template
}

// Load reads both templates from dir, or the built-in templates when dir is
// empty.
func Load(dir string) (*Renderer, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, &ConfigurationError{Template: dir, Err: err}
		}
		if !info.IsDir() {
			return nil, &ConfigurationError{Template: dir, Err: errors.New("not a directory")}
		}
		fsys = os.DirFS(dir)
	}
	return LoadFS(fsys)
}

// LoadFS reads both templates from fsys.
func LoadFS(fsys fs.FS) (*Renderer, error) {
	gen, err := compile(fsys, generatorDef)
	if err != nil {
		return nil, err
	}
	eval, err := compile(fsys, evaluatorDef)
	if err != nil {
		return nil, err
	}
	return &Renderer{generator: gen, evaluator: eval}, nil
}

func compile(fsys fs.FS, s templateDef) (*template.Template, error) {
	b, err := fs.ReadFile(fsys, s.file)
	if err != nil {
		return nil, &ConfigurationError{Template: s.file, Err: err}
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, &ConfigurationError{Template: s.file, Err: errors.New("template is empty")}
	}

	tmpl, err := template.New(filepath.Base(s.file)).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return nil, &ConfigurationError{Template: s.file, Err: err}
	}

	// Dry run with sentinel values: undeclared placeholders fail on the
	// missing key, and the required placeholder must show up in the output.
	data := make(map[string]string, len(s.declared))
	for _, name := range s.declared {
		data[name] = sentinel(name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, &ConfigurationError{Template: s.file, Err: fmt.Errorf("unresolved placeholder: %w", err)}
	}
	if !strings.Contains(buf.String(), sentinel(s.required)) {
		return nil, &ConfigurationError{Template: s.file, Err: fmt.Errorf("placeholder %q is never used", s.required)}
	}
	return tmpl, nil
}

func sentinel(name string) string {
	return "\x00" + name + "\x00"
}

// RenderGenerator fills the generator template. The language is the
// normalised one, so an unrecognised code renders as English.
func (r *Renderer) RenderGenerator(d property.Description) (GeneratorPrompt, error) {
	b, err := d.CanonicalJSON()
	if err != nil {
		return GeneratorPrompt{}, fmt.Errorf("failed to serialise property: %w", err)
	}
	lang := d.Lang()
	p := GeneratorPrompt{
		PropertyJSON: string(b),
		LanguageName: lang.Name(),
		LanguageCode: lang.String(),
	}
	p.Text, err = execute(r.generator, map[string]string{
		VarPropertyJSON: p.PropertyJSON,
		VarLanguageName: p.LanguageName,
		VarLanguageCode: p.LanguageCode,
	})
	return p, err
}

// RenderEvaluator fills the evaluator template with a candidate listing.
func (r *Renderer) RenderEvaluator(html string) (string, error) {
	return execute(r.evaluator, map[string]string{VarHTMLOutput: html})
}

func execute(tmpl *template.Template, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
