package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"main.go", "text/x-go"},
		{"go.mod", "text/x-go.mod"},
		{"sub/go.sum", "text/x-go.sum"},
		{"app.ts", "text/typescript"},
		{"component.tsx", "text/typescript"},
		{"script.js", "text/javascript"},
		{"retry.py", "text/x-python"},
		{"lib.rs", "text/x-rust"},
		{"Main.java", "text/x-java"},
		{"config.json", "application/json"},
		{"docker-compose.yml", "text/x-yaml"},
		{"Cargo.toml", "text/x-toml"},
		{"README.md", "text/markdown"},
		{"schema.sql", "text/x-sql"},
		{"setup.sh", "text/x-sh"},
		{"build/Dockerfile", "text/x-dockerfile"},
		{"Makefile", "text/x-makefile"},
		{"CMakeLists.txt", "text/x-cmake"},
		{"UPPER.GO", "text/x-go"},
		{"LICENSE", "text/plain"},
		{"image.bin", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, MimeTypeForPath(tt.path))
		})
	}
}
