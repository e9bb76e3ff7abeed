package mdadapter

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

func getLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		src       string
		wantTitle string
		contains  []string
		excludes  []string
	}{
		{
			name: "frontmatter title",
			path: "photos",
			src: `---
title: Holiday photos
---
# Summer
`,
			wantTitle: "Holiday photos",
			contains:  []string{"<h1>Summer</h1>"},
			excludes:  []string{"title:"},
		},
		{
			name:      "no frontmatter",
			path:      "music",
			src:       "Some *tracks*\n",
			wantTitle: "music",
			contains:  []string{"<em>tracks</em>"},
		},
		{
			name:      "download directive",
			path:      "music",
			src:       "Get it: {{ download }}\n",
			wantTitle: "music",
			contains:  []string{`<a class="download" href="/download/music">music.zip</a>`},
		},
		{
			name:      "download directive with text",
			path:      "music",
			src:       "{{download: All <tracks>}}\n",
			wantTitle: "music",
			contains:  []string{`href="/download/music">All &lt;tracks&gt;</a>`},
		},
		{
			name:      "other braces stay text",
			path:      "music",
			src:       "{{ upload }}\n",
			wantTitle: "music",
			contains:  []string{"{{ upload }}"},
			excludes:  []string{"<a "},
		},
	}

	r := NewDescriptionRenderer(getLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := r.Render(tt.path, []byte(tt.src))
			require.NoError(t, err)

			assert.Equal(t, tt.path, desc.Path)
			assert.Equal(t, tt.wantTitle, desc.Title)

			for _, s := range tt.contains {
				assert.Contains(t, desc.HTML, s)
			}

			for _, s := range tt.excludes {
				assert.NotContains(t, desc.HTML, s)
			}
		})
	}
}

func TestDownloadDirectiveNode(t *testing.T) {
	md := goldmark.New(goldmark.WithExtensions(NewDownloadExtension()))

	src := []byte("Get {{ download: the files }} now\n")
	ctx := parser.NewContext()
	ctx.Set(pathKey, "music")

	doc := md.Parser().Parse(text.NewReader(src), parser.WithContext(ctx))

	var found []*DownloadDirective
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if d, ok := n.(*DownloadDirective); ok && entering {
			found = append(found, d)
		}

		return ast.WalkContinue, nil
	})
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Equal(t, KindDownloadDirective, found[0].Kind())
	assert.Equal(t, "music", found[0].Path)
	assert.Equal(t, "the files", found[0].LinkText)
	assert.Empty(t, found[0].Text(src))
}
