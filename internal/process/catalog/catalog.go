// Package catalog loads the governed process catalog document.
//
// Parsing is fail-closed: every schema violation is collected and the whole
// document is rejected. A Catalog is an immutable value; the Loader caches
// the last valid one until Invalidate is called.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"govengine/internal/process/models"
	dErrors "govengine/pkg/domain-errors"
)

const (
	maxKeyLength      = 200
	maxTitleLength    = 200
	maxVersionLength  = 50
	maxStepIDLength   = 100
	maxArtifactLength = 200
)

// Catalog is a validated process catalog.
type Catalog struct {
	Version   int               `yaml:"version"`
	Templates []models.Template `yaml:"templates"`

	byKey map[string]int
}

// Issue is one schema violation, located by a dotted path.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) add(path, format string, args ...any) {
	e.Issues = append(e.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Parse decodes and validates a catalog document. Unknown fields are
// rejected. The returned error carries CodeValidation and wraps a
// *ValidationError when the document decodes but violates the schema.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, dErrors.New(dErrors.CodeValidation, "process catalog is empty")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "process catalog is not valid YAML")
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeValidation, "process catalog must contain a single YAML document")
	}

	if verr := validate(&c); verr != nil {
		return nil, dErrors.Wrap(verr, dErrors.CodeValidation, "process catalog failed validation: "+verr.Error())
	}

	c.byKey = make(map[string]int, len(c.Templates))
	for i, tpl := range c.Templates {
		c.byKey[tpl.Key] = i
	}
	return &c, nil
}

func validate(c *Catalog) *ValidationError {
	verr := &ValidationError{}
	if c.Version < 1 {
		verr.add("version", "must be a positive integer")
	}
	if len(c.Templates) == 0 {
		verr.add("templates", "at least one template is required")
	}

	keys := make(map[string]int, len(c.Templates))
	for ti, tpl := range c.Templates {
		path := fmt.Sprintf("templates[%d]", ti)
		checkString(verr, path+".key", tpl.Key, maxKeyLength)
		checkString(verr, path+".title", tpl.Title, maxTitleLength)
		checkString(verr, path+".version", tpl.Version, maxVersionLength)
		if first, dup := keys[tpl.Key]; dup && tpl.Key != "" {
			verr.add(path+".key", "duplicate template key %q (first at templates[%d])", tpl.Key, first)
		} else {
			keys[tpl.Key] = ti
		}
		validateSteps(verr, path, tpl.Steps)
	}

	if len(verr.Issues) == 0 {
		return nil
	}
	return verr
}

func validateSteps(verr *ValidationError, tplPath string, steps []models.Step) {
	if len(steps) == 0 {
		verr.add(tplPath+".steps", "at least one step is required")
		return
	}
	stepIDs := make(map[string]int, len(steps))
	for si, step := range steps {
		path := fmt.Sprintf("%s.steps[%d]", tplPath, si)
		checkString(verr, path+".step_id", step.StepID, maxStepIDLength)
		checkString(verr, path+".title", step.Title, maxTitleLength)
		if first, dup := stepIDs[step.StepID]; dup && step.StepID != "" {
			verr.add(path+".step_id", "duplicate step_id %q (first at steps[%d])", step.StepID, first)
		} else {
			stepIDs[step.StepID] = si
		}
		if !step.CloseRule.IsValid() {
			verr.add(path+".close_rule", "must be %q", models.CloseRuleAllArtifacts)
		}
		if len(step.RequiredArtifacts) == 0 {
			verr.add(path+".required_artifacts", "at least one artifact is required")
		}
		artifacts := make(map[string]struct{}, len(step.RequiredArtifacts))
		for ai, artifact := range step.RequiredArtifacts {
			apath := fmt.Sprintf("%s.required_artifacts[%d]", path, ai)
			checkString(verr, apath, artifact, maxArtifactLength)
			if _, dup := artifacts[artifact]; dup {
				verr.add(apath, "duplicate artifact %q", artifact)
			}
			artifacts[artifact] = struct{}{}
		}
	}
}

func checkString(verr *ValidationError, path, value string, max int) {
	if strings.TrimSpace(value) == "" {
		verr.add(path, "is required")
		return
	}
	if value != strings.TrimSpace(value) {
		verr.add(path, "must not have leading or trailing whitespace")
	}
	if utf8.RuneCountInString(value) > max {
		verr.add(path, "must be %d characters or less", max)
	}
}

// TemplateByKey returns a copy of the template with the given key, or nil.
// It never fails for a missing key.
func (c *Catalog) TemplateByKey(key string) *models.Template {
	if c == nil {
		return nil
	}
	i, ok := c.byKey[key]
	if !ok {
		return nil
	}
	tpl := c.Templates[i].Clone()
	return &tpl
}

// Keys lists template keys in document order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.Templates))
	for i, tpl := range c.Templates {
		keys[i] = tpl.Key
	}
	return keys
}
