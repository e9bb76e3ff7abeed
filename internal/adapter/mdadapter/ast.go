package mdadapter

import (
	"github.com/yuin/goldmark/ast"
)

var KindDownloadDirective = ast.NewNodeKind("DownloadDirective")

// DownloadDirective is a {{ download }} link to the archive of the described directory.
type DownloadDirective struct {
	ast.BaseInline
	Path     string
	LinkText string
}

func (n *DownloadDirective) Kind() ast.NodeKind {
	return KindDownloadDirective
}

func (n *DownloadDirective) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Path":     n.Path,
		"LinkText": n.LinkText,
	}, nil)
}
