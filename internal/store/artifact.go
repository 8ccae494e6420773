package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/errors"
)

// Meta keys stored in the artifact.
const (
	MetaKeyEmbeddingDimension = "embedding_dimension"
	MetaKeyEmbeddingModel     = "embedding_model"
	MetaKeySchemaVersion      = "schema_version"
)

// ArtifactSchemaVersion is written into new artifacts.
const ArtifactSchemaVersion = "1"

const artifactSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	text             TEXT NOT NULL,
	category         TEXT NOT NULL,
	raw_triple_count INTEGER NOT NULL DEFAULT 0,
	embedding        BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS triples (
	subject         TEXT NOT NULL,
	predicate       TEXT NOT NULL,
	object          TEXT NOT NULL,
	subject_label   TEXT NOT NULL DEFAULT '',
	predicate_label TEXT NOT NULL DEFAULT '',
	object_label    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject);
CREATE INDEX IF NOT EXISTS idx_triples_object ON triples(object);
CREATE TABLE IF NOT EXISTS aggregation (
	doc_id     TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	centrality REAL NOT NULL
);
`

// Artifact is the build-time output the engine loads: documents, triples
// and centrality rankings.
type Artifact struct {
	EmbeddingModel string
	Documents      []corpus.Document
	Triples        []corpus.Triple
	Aggregation    []corpus.AggregationEntry
}

// Dimension returns the embedding dimension of the first document, 0 if none.
func (a *Artifact) Dimension() int {
	if len(a.Documents) == 0 {
		return 0
	}
	return len(a.Documents[0].Embedding)
}

// ReadArtifact loads an artifact under a shared file lock.
func ReadArtifact(ctx context.Context, path string) (*Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(errors.ErrCodeArtifactNotFound,
			fmt.Sprintf("artifact not found: %s", path), err)
	}

	lock := newArtifactLock(path)
	if err := lock.RLock(); err != nil {
		return nil, errors.New(errors.ErrCodeArtifactLocked, "cannot lock artifact", err)
	}
	defer func() { _ = lock.Unlock() }()

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.ArtifactError("failed to open artifact", err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, errors.ArtifactError("failed to read artifact meta", err)
	}

	a := &Artifact{EmbeddingModel: meta[MetaKeyEmbeddingModel]}
	if a.Documents, err = readDocuments(ctx, db); err != nil {
		return nil, errors.ArtifactError("failed to read documents", err)
	}
	if a.Triples, err = readTriples(ctx, db); err != nil {
		return nil, errors.ArtifactError("failed to read triples", err)
	}
	if a.Aggregation, err = readAggregation(ctx, db); err != nil {
		return nil, errors.ArtifactError("failed to read aggregation", err)
	}

	if v, ok := meta[MetaKeyEmbeddingDimension]; ok && len(a.Documents) > 0 {
		want, convErr := strconv.Atoi(v)
		if convErr != nil || want != a.Dimension() {
			return nil, errors.ArtifactError(
				fmt.Sprintf("artifact declares dimension %q but documents have %d", v, a.Dimension()), convErr)
		}
	}

	return a, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func readDocuments(ctx context.Context, db *sql.DB) ([]corpus.Document, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, text, category, raw_triple_count, embedding FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []corpus.Document
	for rows.Next() {
		var (
			d     corpus.Document
			label string
			blob  []byte
		)
		if err := rows.Scan(&d.ID, &d.Text, &label, &d.RawTripleCount, &blob); err != nil {
			return nil, err
		}
		if d.Category, err = corpus.ParseCategory(label); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		if d.Embedding, err = DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func readTriples(ctx context.Context, db *sql.DB) ([]corpus.Triple, error) {
	rows, err := db.QueryContext(ctx, `SELECT subject, predicate, object,
		subject_label, predicate_label, object_label FROM triples ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []corpus.Triple
	for rows.Next() {
		var t corpus.Triple
		if err := rows.Scan(&t.Subject, &t.Predicate, &t.Object,
			&t.SubjectLabel, &t.PredicateLabel, &t.ObjectLabel); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func readAggregation(ctx context.Context, db *sql.DB) ([]corpus.AggregationEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT doc_id, category, centrality FROM aggregation ORDER BY doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []corpus.AggregationEntry
	for rows.Next() {
		var (
			e     corpus.AggregationEntry
			label string
		)
		if err := rows.Scan(&e.DocID, &label, &e.Centrality); err != nil {
			return nil, err
		}
		if e.Category, err = corpus.ParseCategory(label); err != nil {
			return nil, fmt.Errorf("aggregation %s: %w", e.DocID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WriteArtifact replaces the artifact at path atomically: it is written to
// a temporary file and renamed under an exclusive file lock.
func WriteArtifact(ctx context.Context, path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := newArtifactLock(path)
	if err := lock.Lock(); err != nil {
		return errors.New(errors.ErrCodeArtifactLocked, "cannot lock artifact", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := writeDatabase(ctx, tmp, a); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename artifact: %w", err)
	}
	return nil
}

func writeDatabase(ctx context.Context, path string, a *Artifact) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, artifactSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		MetaKeySchemaVersion:      ArtifactSchemaVersion,
		MetaKeyEmbeddingDimension: strconv.Itoa(a.Dimension()),
		MetaKeyEmbeddingModel:     a.EmbeddingModel,
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, text, category, raw_triple_count, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare documents: %w", err)
	}
	defer docStmt.Close()
	for _, d := range a.Documents {
		if _, err := docStmt.ExecContext(ctx, d.ID, d.Text, d.Category.String(), d.RawTripleCount, EncodeEmbedding(d.Embedding)); err != nil {
			return fmt.Errorf("failed to write document %s: %w", d.ID, err)
		}
	}

	tripleStmt, err := tx.PrepareContext(ctx, `INSERT INTO triples
		(subject, predicate, object, subject_label, predicate_label, object_label) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare triples: %w", err)
	}
	defer tripleStmt.Close()
	for _, t := range a.Triples {
		if _, err := tripleStmt.ExecContext(ctx, t.Subject, t.Predicate, t.Object,
			t.SubjectLabel, t.PredicateLabel, t.ObjectLabel); err != nil {
			return fmt.Errorf("failed to write triple: %w", err)
		}
	}

	aggStmt, err := tx.PrepareContext(ctx, `INSERT INTO aggregation (doc_id, category, centrality) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare aggregation: %w", err)
	}
	defer aggStmt.Close()
	for _, e := range a.Aggregation {
		if _, err := aggStmt.ExecContext(ctx, e.DocID, e.Category.String(), e.Centrality); err != nil {
			return fmt.Errorf("failed to write aggregation %s: %w", e.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifact: %w", err)
	}
	return nil
}

// EncodeEmbedding packs v as little-endian float32.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks a little-endian float32 blob.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
