package mdadapter

import (
	"fmt"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const (
	downloadURLPrefix = "/download/"
	archiveExt        = ".zip"
)

type DownloadDirectiveRenderer struct{}

func NewDownloadDirectiveRenderer() renderer.NodeRenderer {
	return &DownloadDirectiveRenderer{}
}

func (r *DownloadDirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDownloadDirective, r.renderDownloadDirective)
}

func (r *DownloadDirectiveRenderer) renderDownloadDirective(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	directive, ok := n.(*DownloadDirective)
	if !ok {
		return ast.WalkStop, fmt.Errorf("unexpected node %T, expected *DownloadDirective", n)
	}

	text := directive.LinkText
	if text == "" {
		text = directive.Path + archiveExt
	}

	_, _ = w.WriteString(`<a class="download" href="`)
	_, _ = w.Write(util.URLEscape([]byte(downloadURLPrefix+directive.Path), false))
	_, _ = w.WriteString(`">`)
	_, _ = w.Write(util.EscapeHTML([]byte(text)))
	_, _ = w.WriteString(`</a>`)

	return ast.WalkContinue, nil
}
