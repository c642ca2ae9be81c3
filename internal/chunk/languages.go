package chunk

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/Aman-CERP/mcb/internal/domain"
)

// LanguageSpec describes how to chunk one tree-sitter language.
type LanguageSpec struct {
	Name       string
	Extensions []string
	Grammar    func() *sitter.Language
	Defaults   Options

	// Declarations maps declaration node types to chunk kinds.
	Declarations map[string]domain.ChunkKind
	// Wrappers are nodes whose kind and name come from the declaration they wrap
	// (export statements, decorated definitions).
	Wrappers map[string]bool
	// Attached node types (doc comments, attributes, decorators) are glued to
	// the declaration that follows them.
	Attached map[string]bool
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var jsDeclarations = map[string]domain.ChunkKind{
	"function_declaration":           domain.ChunkKindFunction,
	"generator_function_declaration": domain.ChunkKindFunction,
	"class_declaration":              domain.ChunkKindClass,
	"abstract_class_declaration":     domain.ChunkKindClass,
	"method_definition":              domain.ChunkKindMethod,
	"interface_declaration":          domain.ChunkKindInterface,
	"type_alias_declaration":         domain.ChunkKindType,
	"enum_declaration":               domain.ChunkKindType,
}

var languageSpecs = []*LanguageSpec{
	{
		Name:       "go",
		Extensions: []string{".go"},
		Grammar:    golang.GetLanguage,
		Defaults:   Options{MaxChars: 1500, MinChars: DefaultMinChars, OverlapLines: DefaultOverlapLines},
		Declarations: map[string]domain.ChunkKind{
			"function_declaration": domain.ChunkKindFunction,
			"method_declaration":   domain.ChunkKindMethod,
			"type_declaration":     domain.ChunkKindType,
		},
		Attached: set("comment"),
	},
	{
		Name:       "rust",
		Extensions: []string{".rs"},
		Grammar:    rust.GetLanguage,
		Defaults:   Options{MaxChars: 1500, MinChars: DefaultMinChars, OverlapLines: DefaultOverlapLines},
		Declarations: map[string]domain.ChunkKind{
			"function_item":           domain.ChunkKindFunction,
			"function_signature_item": domain.ChunkKindMethod,
			"struct_item":             domain.ChunkKindType,
			"enum_item":               domain.ChunkKindType,
			"union_item":              domain.ChunkKindType,
			"type_item":               domain.ChunkKindType,
			"trait_item":              domain.ChunkKindInterface,
			"impl_item":               domain.ChunkKindClass,
			"mod_item":                domain.ChunkKindModule,
			"macro_definition":        domain.ChunkKindFunction,
		},
		Attached: set("line_comment", "block_comment", "attribute_item"),
	},
	{
		Name:       "python",
		Extensions: []string{".py", ".pyi"},
		Grammar:    python.GetLanguage,
		Defaults:   Options{MaxChars: 1200, MinChars: DefaultMinChars, OverlapLines: DefaultOverlapLines},
		Declarations: map[string]domain.ChunkKind{
			"function_definition": domain.ChunkKindFunction,
			"class_definition":    domain.ChunkKindClass,
		},
		Wrappers: set("decorated_definition"),
		Attached: set("comment"),
	},
	{
		Name:         "javascript",
		Extensions:   []string{".js", ".mjs", ".cjs", ".jsx"},
		Grammar:      javascript.GetLanguage,
		Defaults:     Options{MaxChars: 1200, MinChars: DefaultMinChars, OverlapLines: DefaultOverlapLines},
		Declarations: jsDeclarations,
		Wrappers:     set("export_statement"),
		Attached:     set("comment", "decorator"),
	},
	{
		Name:         "typescript",
		Extensions:   []string{".ts", ".mts", ".cts"},
		Grammar:      typescript.GetLanguage,
		Defaults:     Options{MaxChars: 1200, MinChars: DefaultMinChars, OverlapLines: DefaultOverlapLines},
		Declarations: jsDeclarations,
		Wrappers:     set("export_statement"),
		Attached:     set("comment", "decorator"),
	},
	{
		Name:         "tsx",
		Extensions:   []string{".tsx"},
		Grammar:      tsx.GetLanguage,
		Defaults:     Options{MaxChars: 1200, MinChars: DefaultMinChars, OverlapLines: DefaultOverlapLines},
		Declarations: jsDeclarations,
		Wrappers:     set("export_statement"),
		Attached:     set("comment", "decorator"),
	},
}

// Languages returns the tree-sitter language specs.
func Languages() []*LanguageSpec {
	return languageSpecs
}

// LanguageByName returns the language entry named name.
func LanguageByName(name string) (*LanguageSpec, bool) {
	for _, s := range languageSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// declKind returns the kind of n, unwrapping wrappers, and the node that
// carries the declaration's name.
func (s *LanguageSpec) declKind(n *Node) (domain.ChunkKind, *Node, bool) {
	if k, ok := s.Declarations[n.Type]; ok {
		return k, n, true
	}
	if s.Wrappers[n.Type] {
		for _, c := range n.Children {
			if k, inner, ok := s.declKind(c); ok {
				return k, inner, true
			}
		}
	}
	// const handler = () => {...}
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, decl := range n.Children {
			if decl.Type != "variable_declarator" {
				continue
			}
			if v := decl.ChildByField("value"); v != nil &&
				(v.Type == "arrow_function" || v.Type == "function" || v.Type == "function_expression") {
				return domain.ChunkKindFunction, decl, true
			}
		}
	}
	return "", nil, false
}

// symbolName extracts the declared name.
func symbolName(n *Node, source []byte) string {
	switch n.Type {
	case "impl_item":
		if t := n.ChildByField("type"); t != nil {
			name := t.Content(source)
			if tr := n.ChildByField("trait"); tr != nil {
				name = tr.Content(source) + " for " + name
			}
			return name
		}
	case "type_declaration":
		if spec := n.ChildByType("type_spec", "type_alias"); spec != nil {
			return symbolName(spec, source)
		}
	}
	if name := n.ChildByField("name"); name != nil {
		return name.Content(source)
	}
	for _, c := range n.Children {
		switch c.Type {
		case "identifier", "type_identifier", "field_identifier", "property_identifier":
			return c.Content(source)
		}
	}
	return ""
}

// languageByExtension maps lowercased extensions, including the dot.
var languageByExtension = func() map[string]string {
	m := map[string]string{
		".md":       "markdown",
		".markdown": "markdown",
		".mdx":      "markdown",
	}
	for _, s := range languageSpecs {
		for _, ext := range s.Extensions {
			m[ext] = s.Name
		}
	}
	return m
}()

// ExtensionLanguage returns the language registered for ext ("" if none).
func ExtensionLanguage(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return languageByExtension[ext]
}
