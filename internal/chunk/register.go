package chunk

import (
	"github.com/Aman-CERP/mcb/internal/registry"
)

func optionsFrom(cfg registry.Config) Options {
	return Options{
		MaxChars:     cfg.Int("max_chars", 0),
		MinChars:     cfg.Int("min_chars", 0),
		OverlapLines: cfg.Int("overlap_lines", DefaultOverlapLines),
	}
}

func init() {
	for _, spec := range languageSpecs {
		spec := spec
		registry.Register(registry.KindLanguage, spec.Name, "tree-sitter "+spec.Name+" chunker",
			func(cfg registry.Config) (any, error) {
				return NewCodeChunker(spec, optionsFrom(cfg)), nil
			})
	}
	registry.Register(registry.KindLanguage, "markdown", "heading-based Markdown chunker",
		func(cfg registry.Config) (any, error) {
			return NewMarkdownChunker(optionsFrom(cfg)), nil
		})
	registry.Register(registry.KindLanguage, UniversalProvider, "line windows with overlap for any text",
		func(cfg registry.Config) (any, error) {
			return NewUniversalChunker(optionsFrom(cfg)), nil
		})
}
