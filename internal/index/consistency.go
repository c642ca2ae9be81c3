package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanVectors is a file with vectors but no live hash.
	InconsistencyOrphanVectors InconsistencyType = iota
	// InconsistencyMissingVectors is a file with a live hash but no vectors.
	InconsistencyMissingVectors
)

// String returns the log name of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVectors:
		return "orphan_vectors"
	case InconsistencyMissingVectors:
		return "missing_vectors"
	default:
		return "unknown"
	}
}

// Inconsistency is one file whose stores disagree.
type Inconsistency struct {
	Type     InconsistencyType
	FilePath string
}

// CheckResult is the outcome of Check.
type CheckResult struct {
	Collection string
	// Checked is the number of distinct files seen in either store.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Check compares the file-hash store with the vector store. Files that
// produced no chunks, such as empty files, legitimately report
// InconsistencyMissingVectors.
func (o *Orchestrator) Check(ctx context.Context, collection string) (*CheckResult, error) {
	start := o.now()
	vectors, release := o.vectors.Acquire()
	defer release()

	hashed, err := o.hashes.GetIndexedFiles(ctx, collection)
	if err != nil {
		return nil, err
	}
	stored, err := vectors.ListFilePaths(ctx, collection, 0)
	if err != nil {
		return nil, err
	}

	hashSet := make(map[string]bool, len(hashed))
	for _, p := range hashed {
		hashSet[p] = true
	}
	vecSet := make(map[string]bool, len(stored))
	for _, p := range stored {
		vecSet[p] = true
	}

	var issues []Inconsistency
	for _, p := range stored {
		if !hashSet[p] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVectors, FilePath: p})
		}
	}
	for _, p := range hashed {
		if !vecSet[p] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVectors, FilePath: p})
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].FilePath != issues[j].FilePath {
			return issues[i].FilePath < issues[j].FilePath
		}
		return issues[i].Type < issues[j].Type
	})

	checked := len(hashSet)
	for p := range vecSet {
		if !hashSet[p] {
			checked++
		}
	}
	return &CheckResult{
		Collection:      collection,
		Checked:         checked,
		Inconsistencies: issues,
		Duration:        o.now().Sub(start),
	}, nil
}

// Repair removes orphaned vectors and lexical documents, and tombstones
// files with missing vectors so the next run indexes them again. It is
// best effort and returns how many issues it fixed.
func (o *Orchestrator) Repair(ctx context.Context, collection string, issues []Inconsistency) int {
	vectors, release := o.vectors.Acquire()
	defer release()
	var fixed int
	for _, issue := range issues {
		var err error
		switch issue.Type {
		case InconsistencyOrphanVectors:
			if _, err = vectors.DeleteByFile(ctx, collection, issue.FilePath); err == nil {
				_, err = o.lexical.DeleteByFile(ctx, collection, issue.FilePath)
			}
		case InconsistencyMissingVectors:
			err = o.hashes.MarkDeleted(ctx, collection, issue.FilePath)
		}
		if err != nil {
			o.logger.Warn("index_repair_failed",
				slog.String("collection", collection),
				slog.String("path", issue.FilePath),
				slog.String("type", issue.Type.String()),
				slog.String("error", err.Error()))
			continue
		}
		fixed++
	}
	if fixed > 0 {
		o.logger.Info("index_repaired", slog.String("collection", collection), slog.Int("fixed", fixed))
	}
	return fixed
}

// Clear drops a collection's vectors, lexical corpus and file hashes.
func (o *Orchestrator) Clear(ctx context.Context, collection string) error {
	if o.ops.IsIndexing(collection) {
		return errIndexing(collection)
	}
	vectors, release := o.vectors.Acquire()
	defer release()
	if err := vectors.DropCollection(ctx, collection); err != nil {
		return err
	}
	if err := o.lexical.DropCollection(ctx, collection); err != nil {
		return err
	}
	n, err := o.hashes.ClearCollection(ctx, collection)
	if err != nil {
		return err
	}
	o.logger.Info("collection_cleared", slog.String("collection", collection), slog.Int64("file_hashes", n))
	return nil
}

func errIndexing(collection string) error {
	return mcberrors.InvalidArgument("collection " + collection + " is being indexed")
}
