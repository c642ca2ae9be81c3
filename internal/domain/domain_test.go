package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID_RoundTripsWithColonsInPath(t *testing.T) {
	id := ChunkID("repo", "C:/src/main.go", 3, 17)
	assert.Equal(t, "repo:C:/src/main.go:3-17", id)

	coll, path, start, end, err := ParseChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "repo", coll)
	assert.Equal(t, "C:/src/main.go", path)
	assert.Equal(t, 3, start)
	assert.Equal(t, 17, end)

	_, _, _, _, err = ParseChunkID("nocolons")
	assert.Error(t, err)
}

func TestCodeChunk_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   CodeChunk
		wantErr bool
	}{
		{"valid", CodeChunk{FilePath: "a.go", StartLine: 1, EndLine: 1, EndByte: 3}, false},
		{"no path", CodeChunk{StartLine: 1, EndLine: 1}, true},
		{"inverted lines", CodeChunk{FilePath: "a.go", StartLine: 5, EndLine: 4}, true},
		{"zero line", CodeChunk{FilePath: "a.go", StartLine: 0, EndLine: 4}, true},
		{"inverted bytes", CodeChunk{FilePath: "a.go", StartLine: 1, EndLine: 1, StartByte: 4, EndByte: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSearchFilter_Match(t *testing.T) {
	c := CodeChunk{FilePath: "internal/auth/mw.go", Language: "go", StartLine: 1, EndLine: 2,
		Metadata: map[string]string{MetaBranch: "main", MetaCommit: "abcdef123"}}
	md := c.VectorMetadata()

	assert.True(t, SearchFilter{}.Match(md))
	assert.True(t, SearchFilter{Language: "Go", PathPrefix: "internal/", Branch: "main", Commit: "abcdef"}.Match(md))
	assert.False(t, SearchFilter{Language: "python"}.Match(md))
	assert.False(t, SearchFilter{PathPrefix: "cmd/"}.Match(md))
	assert.False(t, SearchFilter{Branch: "dev"}.Match(md))
}

func TestResultFromMetadata(t *testing.T) {
	c := CodeChunk{FilePath: "a.py", Language: "python", StartLine: 4, EndLine: 9, Content: "class A:\n    pass"}

	r := ResultFromMetadata("x", 0.5, c.VectorMetadata())

	assert.Equal(t, "a.py", r.FilePath)
	assert.Equal(t, 4, r.StartLine)
	assert.Equal(t, 9, r.EndLine)
	assert.Equal(t, "class A:\n    pass", r.Snippet)
	assert.Equal(t, ProvenanceVector, r.Source)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))

	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestMemoryFilter_Match(t *testing.T) {
	o := &Observation{
		Type:      ObservationDecision,
		Tags:      []string{"auth", "db"},
		CreatedAt: 100,
		Metadata:  ObservationMetadata{SessionID: "s1", Branch: "main"},
	}

	assert.True(t, MemoryFilter{}.Match(o))
	assert.True(t, MemoryFilter{Tags: []string{"auth"}, Type: ObservationDecision, SessionID: "s1"}.Match(o))
	assert.False(t, MemoryFilter{Tags: []string{"auth", "ui"}}.Match(o))
	assert.False(t, MemoryFilter{Branch: "dev"}.Match(o))
	assert.False(t, MemoryFilter{Since: 101}.Match(o))
}

func TestParseObservationType(t *testing.T) {
	got, err := ParseObservationType("Quality_Gate")
	require.NoError(t, err)
	assert.Equal(t, ObservationQualityGate, got)

	_, err = ParseObservationType("poem")
	assert.Error(t, err)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("my-repo_1.0"))
	assert.Error(t, ValidateCollectionName(""))
	assert.Error(t, ValidateCollectionName("a b"))
	assert.Error(t, ValidateCollectionName("a:b"))
}
