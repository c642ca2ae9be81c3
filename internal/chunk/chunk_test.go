package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

const rustFixture = `use std::fmt;

/// Adds two numbers and logs the operation.
fn add(a: i32, b: i32) -> i32 {
    let sum = a + b;
    println!("adding {} and {}", a, b);
    println!("result is {}", sum);
    if sum > 100 {
        println!("that is a big number");
    }
    sum
}

/// Greets a person by name.
fn greet(name: &str) -> String {
    let mut out = String::new();
    out.push_str("Hello, ");
    out.push_str(name);
    out.push_str("! Welcome to the project.");
    if name.is_empty() {
        out = String::from("Hello, stranger!");
    }
    out
}

fn main() {
    let _ = add(1, 2);
    let _ = greet("mcb");
    let _ = fmt::Error;
}
`

const pythonFixture = `import os


class Greeter:
    """Greets people."""

    def __init__(self, name):
        self.name = name

    def greet(self):
        return "Hello, " + self.name

    def shout(self):
        return self.greet().upper()

    def path(self):
        return os.path.join("/tmp", self.name)
`

func chunkWith(t *testing.T, c ports.LanguageChunker, content, path string) []domain.CodeChunk {
	t.Helper()
	chunks, err := c.Chunk(context.Background(), []byte(content), path)
	require.NoError(t, err)
	return chunks
}

func symbolsOf(chunks []domain.CodeChunk) []string {
	var out []string
	for _, c := range chunks {
		if s := c.Metadata["symbols"]; s != "" {
			out = append(out, strings.Split(s, ",")...)
		} else if c.Symbol != "" {
			out = append(out, c.Symbol)
		}
	}
	return out
}

// assertSlices checks every chunk is the exact text of its line span and
// that spans only overlap by the configured window overlap.
func assertSlices(t *testing.T, content string, chunks []domain.CodeChunk, overlap int) {
	t.Helper()
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	prevEnd := 0
	for _, c := range chunks {
		require.NoError(t, c.Validate())
		require.LessOrEqual(t, c.EndLine, len(lines))
		assert.Equal(t, strings.Join(lines[c.StartLine-1:c.EndLine], "\n"), c.Content)
		assert.Equal(t, c.Content, content[c.StartByte:c.EndByte])
		if c.Kind == domain.ChunkKindWindow || prevEnd == 0 {
			assert.GreaterOrEqual(t, c.StartLine, prevEnd-overlap+1)
		} else {
			assert.Greater(t, c.StartLine, prevEnd-overlap)
		}
		prevEnd = c.EndLine
	}
}

func TestCodeChunker_RustFunctions(t *testing.T) {
	// Given: a Rust file with three functions
	spec, ok := LanguageByName("rust")
	require.True(t, ok)
	c := NewCodeChunker(spec, Options{})

	// When: chunking
	chunks := chunkWith(t, c, rustFixture, "a.rs")

	// Then: each function is its own declaration-level chunk
	require.GreaterOrEqual(t, len(chunks), 2)
	syms := symbolsOf(chunks)
	assert.Contains(t, syms, "add")
	assert.Contains(t, syms, "greet")
	for _, ch := range chunks {
		assert.Equal(t, "rust", ch.Language)
		assert.Equal(t, "a.rs", ch.FilePath)
	}
	assertSlices(t, rustFixture, chunks, 0)
}

func TestCodeChunker_AttachesDocComments(t *testing.T) {
	spec, _ := LanguageByName("go")
	c := NewCodeChunker(spec, Options{MinChars: 1})
	src := "package main\n\n// Add returns the sum.\n// It never overflows.\nfunc Add(a, b int) int {\n\treturn a + b\n}\n\n// stray comment\n\nfunc Sub(a, b int) int {\n\treturn a - b\n}\n"

	chunks := chunkWith(t, c, src, "m.go")

	var add, sub *domain.CodeChunk
	for i := range chunks {
		switch chunks[i].Symbol {
		case "Add":
			add = &chunks[i]
		case "Sub":
			sub = &chunks[i]
		}
	}
	require.NotNil(t, add)
	require.NotNil(t, sub)
	assert.Equal(t, 3, add.StartLine)
	assert.True(t, strings.HasPrefix(add.Content, "// Add returns the sum."))
	assert.Equal(t, domain.ChunkKindFunction, add.Kind)
	assert.Equal(t, 11, sub.StartLine)
	assertSlices(t, src, chunks, 0)
}

func TestCodeChunker_PythonClassFitsInOneChunk(t *testing.T) {
	spec, _ := LanguageByName("python")
	c := NewCodeChunker(spec, Options{})

	chunks := chunkWith(t, c, pythonFixture, "b.py")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Greeter", chunks[0].Symbol)
	assert.Equal(t, domain.ChunkKindClass, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestCodeChunker_SplitsLargeClassAtMethods(t *testing.T) {
	spec, _ := LanguageByName("python")
	c := NewCodeChunker(spec, Options{MaxChars: 120, MinChars: 20})

	chunks := chunkWith(t, c, pythonFixture, "b.py")

	require.Greater(t, len(chunks), 1)
	syms := symbolsOf(chunks)
	assert.Contains(t, syms, "greet")
	assert.Contains(t, syms, "shout")
	assert.Contains(t, syms, "path")
	methods := 0
	for _, ch := range chunks {
		if ch.Kind == domain.ChunkKindMethod {
			methods++
		}
		assert.LessOrEqual(t, len(ch.Content), 120)
	}
	assert.Greater(t, methods, 0)
	assertSlices(t, pythonFixture, chunks, 0)
}

func TestCodeChunker_FallsBackToWindowsWithOverlap(t *testing.T) {
	spec, _ := LanguageByName("go")
	c := NewCodeChunker(spec, Options{MaxChars: 200, OverlapLines: 2})
	var b strings.Builder
	b.WriteString("package main\n\nfunc Long() {\n")
	for i := 0; i < 30; i++ {
		b.WriteString("\tprintln(\"line\")\n")
	}
	b.WriteString("}\n")
	src := b.String()

	chunks := chunkWith(t, c, src, "long.go")

	var windows []domain.CodeChunk
	for _, ch := range chunks {
		if ch.Symbol == "Long" {
			windows = append(windows, ch)
		}
	}
	require.Greater(t, len(windows), 1)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].EndLine-1, windows[i].StartLine, "windows share exactly two lines")
		assert.LessOrEqual(t, len(windows[i].Content), 200)
	}
	assert.Equal(t, 34, windows[len(windows)-1].EndLine)
}

func TestCodeChunker_Deterministic(t *testing.T) {
	for _, spec := range Languages() {
		t.Run(spec.Name, func(t *testing.T) {
			c := NewCodeChunker(spec, Options{MaxChars: 150})
			src := rustFixture
			if spec.Name == "python" {
				src = pythonFixture
			}
			first, err := c.Chunk(context.Background(), []byte(src), "f")
			require.NoError(t, err)
			second, err := c.Chunk(context.Background(), []byte(src), "f")
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestCodeChunker_EmptyContent(t *testing.T) {
	spec, _ := LanguageByName("go")
	chunks := chunkWith(t, NewCodeChunker(spec, Options{}), "  \n\n", "e.go")
	assert.Empty(t, chunks)
}

func TestUniversalChunker_SmallFileIsOneWindow(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, "plain text line")
	}
	src := strings.Join(lines, "\n") + "\n"

	chunks := chunkWith(t, NewUniversalChunker(Options{}), src, "c.txt")

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 10, chunks[0].EndLine)
	assert.Equal(t, LanguageText, chunks[0].Language)
}

func TestUniversalChunker_WindowsOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("0123456789\n")
	}
	src := b.String()

	chunks := chunkWith(t, NewUniversalChunker(Options{MaxChars: 54, OverlapLines: 1}), src, "big.log")

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndLine, chunks[i].StartLine)
	}
	assert.Equal(t, 40, chunks[len(chunks)-1].EndLine)
	assertSlices(t, src, chunks, 1)
}

func TestMarkdownChunker_Sections(t *testing.T) {
	src := "# Title\nintro text\n## Install\nrun it\n```\n# not a heading\n```\n"

	chunks := chunkWith(t, NewMarkdownChunker(Options{MinChars: 1}), src, "README.md")

	require.Len(t, chunks, 2)
	assert.Equal(t, "Title", chunks[0].Symbol)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, "Title > Install", chunks[1].Symbol)
	assert.Equal(t, 7, chunks[1].EndLine)
	assert.Equal(t, domain.ChunkKindSection, chunks[1].Kind)
}

func TestEngine_RoutesAndFallsBack(t *testing.T) {
	e, err := NewDefaultEngine()
	require.NoError(t, err)
	ctx := context.Background()

	res, err := e.Chunk(ctx, "a.rs", []byte(rustFixture))
	require.NoError(t, err)
	assert.Equal(t, "rust", res.Language)
	assert.False(t, res.Fallback)
	assert.NotEmpty(t, res.Chunks)

	res, err = e.Chunk(ctx, "c.txt", []byte("one\ntwo\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, LanguageText, res.Language)
	assert.True(t, res.Fallback)
	require.Len(t, res.Chunks, 1)

	res, err = e.Chunk(ctx, "bad.txt", []byte("hello \xff world"))
	require.NoError(t, err)
	assert.True(t, res.InvalidUTF8)
	assert.Contains(t, res.Chunks[0].Content, "�")

	assert.True(t, e.Supports("x/y.py"))
	assert.False(t, e.Supports("x/y.txt"))
	assert.Contains(t, e.Languages(), "markdown")
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path, content, want string
	}{
		{"main.go", "", "go"},
		{"lib.RS", "", "rust"},
		{"app.tsx", "", "tsx"},
		{"script", "#!/usr/bin/env python3\nprint(1)\n", "python"},
		{"tool", "#!/usr/bin/env node\n", "javascript"},
		{"Makefile", "all:\n\tgo build\n", LanguageText},
		{"notes.txt", "", LanguageText},
		{"noext", "package main\n\nfunc main() {}\n", "go"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path, []byte(tt.content)))
		})
	}
}

func TestRegistry_LanguageProviders(t *testing.T) {
	names := registry.Default().Names(registry.KindLanguage)
	assert.Contains(t, names, "rust")
	assert.Contains(t, names, "universal")
	assert.Contains(t, names, "markdown")

	c, err := registry.ResolveAs[ports.LanguageChunker](registry.Default(), registry.KindLanguage,
		registry.NewConfig("python", "max_chars", 500))
	require.NoError(t, err)
	assert.Equal(t, "python", c.Language())
	assert.Equal(t, 500, c.(*CodeChunker).Options().MaxChars)
}

type fakeChunker struct {
	lang string
	kind domain.ChunkKind
}

func (f fakeChunker) Language() string     { return f.lang }
func (f fakeChunker) Extensions() []string { return nil }
func (f fakeChunker) ProviderName() string { return "fake-" + f.lang }

func (f fakeChunker) Chunk(_ context.Context, content []byte, filePath string) ([]domain.CodeChunk, error) {
	return []domain.CodeChunk{{
		FilePath:  filePath,
		Language:  f.lang,
		Content:   string(content),
		StartLine: 1,
		EndLine:   1,
		Kind:      f.kind,
		Symbol:    f.ProviderName(),
	}}, nil
}

func TestRegistryEngine_RoutesToRegisteredChunkers(t *testing.T) {
	// Given a registry holding a custom go chunker and a custom fallback
	r := registry.New()
	r.Register(registry.KindLanguage, "go", "fake go chunker", func(registry.Config) (any, error) {
		return fakeChunker{lang: "go", kind: domain.ChunkKindFunction}, nil
	})
	r.Register(registry.KindLanguage, UniversalProvider, "fake fallback", func(registry.Config) (any, error) {
		return fakeChunker{lang: LanguageText, kind: domain.ChunkKindWindow}, nil
	})

	// When an engine is built from it
	e, err := NewRegistryEngine(r, registry.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	// Then only the registered languages are dedicated
	assert.Equal(t, []string{"go"}, e.Languages())

	// And go files reach the registered chunker
	res, err := e.Chunk(ctx, "main.go", []byte("package main\n"))
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "fake-go", res.Chunks[0].Symbol)
	assert.False(t, res.Fallback)

	// And other languages fall back to the registered universal chunker
	res, err = e.Chunk(ctx, "lib.rs", []byte("fn main() {}\n"))
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "fake-text", res.Chunks[0].Symbol)
	assert.True(t, res.Fallback)
}

func TestRegistryEngine_FactoryError(t *testing.T) {
	r := registry.New()
	r.Register(registry.KindLanguage, "broken", "fails", func(registry.Config) (any, error) {
		return nil, errors.New("no grammar")
	})

	_, err := NewRegistryEngine(r, registry.Config{})

	assert.ErrorContains(t, err, "no grammar")
}

func TestRegistryEngine_PassesOptions(t *testing.T) {
	e, err := NewRegistryEngine(registry.Default(), registry.NewConfig("", "max_chars", 321))
	require.NoError(t, err)

	e.mu.RLock()
	c := e.chunkers["python"]
	e.mu.RUnlock()

	require.NotNil(t, c)
	assert.Equal(t, 321, c.(*CodeChunker).Options().MaxChars)
}
