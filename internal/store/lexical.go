package store

import (
	"log/slog"
	"strings"

	"github.com/Aman-CERP/mcb/internal/database"
	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// LexicalBackend names a BM25 implementation.
type LexicalBackend string

const (
	// LexicalMemory keeps the corpus in process memory (default).
	LexicalMemory LexicalBackend = "memory"

	// LexicalSQLite persists postings in the shared database.
	LexicalSQLite LexicalBackend = "sqlite"

	// LexicalBleve uses one Bleve index per collection.
	LexicalBleve LexicalBackend = "bleve"
)

// LexicalOptions carries what the backends need.
type LexicalOptions struct {
	Config BM25Config
	DB     *database.DB // sqlite
	Dir    string       // bleve; "" = memory only
	Logger *slog.Logger
}

// NewLexicalIndex creates the named backend.
func NewLexicalIndex(backend string, opts LexicalOptions) (ports.LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalMemory, "":
		return NewMemoryLexical(opts.Config), nil
	case LexicalSQLite:
		if opts.DB == nil {
			return nil, mcberrors.Configuration("sqlite lexical backend requires a database", nil)
		}
		return NewSQLiteLexical(opts.DB, opts.Config), nil
	case LexicalBleve:
		idx, err := NewBleveLexical(opts.Dir, opts.Config, opts.Logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, mcberrors.UnknownProvider("lexical", backend,
			[]string{string(LexicalBleve), string(LexicalMemory), string(LexicalSQLite)})
	}
}

// ParamSetter is implemented by backends whose scoring parameters can be
// tuned per collection.
type ParamSetter interface {
	SetParams(collection string, p BM25Params)
}

var (
	_ ParamSetter = (*MemoryLexical)(nil)
	_ ParamSetter = (*SQLiteLexical)(nil)
)

// docFile returns the file path encoded in a chunk document id, or "" when
// id was not built by domain.ChunkID.
func docFile(id string) string {
	_, path, _, _, err := domain.ParseChunkID(id)
	if err != nil {
		return ""
	}
	return path
}

// likePrefix escapes s for a LIKE pattern matching everything starting with s.
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s) + "%"
}
