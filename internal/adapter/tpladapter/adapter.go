package tpladapter

import (
	"bytes"
	"fmt"
	"html/template"
	"os"

	_ "embed"

	"github.com/jgivc/netfshare/internal/entity"
)

const (
	templateNameDescription = "DESCRIPTION"

	funcNameSafeHTML = "safeHTML"
)

//go:embed template.html
var defaultTemplate string

// tplAdapter renders the listing page with html/template.
type tplAdapter struct {
	tpl *template.Template
}

// NewTplAdapter parses templateFileName, or the embedded page when it is empty.
// The template must define DESCRIPTION.
func NewTplAdapter(templateFileName string) (*tplAdapter, error) {
	tpl := template.New("").Funcs(template.FuncMap{
		funcNameSafeHTML: safeHTML,
	})

	src := defaultTemplate
	if templateFileName != "" {
		data, err := os.ReadFile(templateFileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read template: %w", err)
		}

		src = string(data)
	}

	if _, err := tpl.Parse(src); err != nil {
		return nil, fmt.Errorf("cannot parse template: %w", err)
	}

	if tpl.Lookup(templateNameDescription) == nil {
		return nil, fmt.Errorf("template %s must be defined", templateNameDescription)
	}

	return &tplAdapter{tpl: tpl}, nil
}

func (a *tplAdapter) Render(page *entity.IndexPage) (string, error) {
	buf := bytes.Buffer{}
	if err := a.tpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("cannot execute template: %w", err)
	}

	return buf.String(), nil
}

// safeHTML marks description markup as trusted. It comes from the markdown
// renderer, which drops raw HTML.
func safeHTML(s string) template.HTML {
	return template.HTML(s)
}
