// Package mdadapter renders the description.md of a shared directory.
//
// The file is markdown with optional YAML frontmatter:
//
//	---
//	title: Holiday photos
//	---
//	# Summer 2024
//	{{ download: Get everything }}
package mdadapter

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/jgivc/netfshare/internal/entity"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

type Frontmatter struct {
	Title string `yaml:"title"`
}

type descRenderer struct {
	md  goldmark.Markdown
	log *slog.Logger
}

func NewDescriptionRenderer(log *slog.Logger) *descRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&frontmatter.Extender{},
			NewDownloadExtension(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &descRenderer{
		md:  md,
		log: log.With(slog.String("item", "DescriptionRenderer")),
	}
}

// Render converts src, the description of the directory at path. Without a
// frontmatter title the path is used as the title.
func (r *descRenderer) Render(path string, src []byte) (*entity.Description, error) {
	ctx := parser.NewContext()
	ctx.Set(pathKey, path)

	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf, parser.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("cannot convert markdown: %w", err)
	}

	desc := &entity.Description{
		Path:  path,
		Title: path,
		HTML:  buf.String(),
	}

	if data := frontmatter.Get(ctx); data != nil {
		var fm Frontmatter
		if err := data.Decode(&fm); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter: %w", err)
		}

		if fm.Title != "" {
			desc.Title = fm.Title
		}
	}

	r.log.Debug("Render description", slog.String("path", path), slog.Int("size", buf.Len()))

	return desc, nil
}
