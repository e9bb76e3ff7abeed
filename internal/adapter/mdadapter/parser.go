package mdadapter

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var (
	// {{ download }} or {{ download: Link text }}
	directiveRe = regexp.MustCompile(`^\{\{\s*download(?::\s*([^}]*?))?\s*\}\}`)

	// pathKey carries the directory path of the document being converted.
	pathKey = parser.NewContextKey()
)

type DownloadDirectiveParser struct{}

func NewDownloadDirectiveParser() parser.InlineParser {
	return &DownloadDirectiveParser{}
}

func (s *DownloadDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *DownloadDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := directiveRe.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	path, _ := pc.Get(pathKey).(string)
	if path == "" {
		return nil
	}

	block.Advance(len(matches[0]))

	return &DownloadDirective{
		Path:     path,
		LinkText: strings.TrimSpace(string(matches[1])),
	}
}
