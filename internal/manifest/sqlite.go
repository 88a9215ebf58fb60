package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/melody-ding/go-signprep/internal/types"
)

// Run kinds
const (
	KindBuild   = "build"
	KindAugment = "augment"
)

// Run statuses
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// ErrUnknownRun is returned when a run id is not in the manifest
var ErrUnknownRun = errors.New("unknown run")

// Run is one row of the runs table
type Run struct {
	ID         string
	Kind       string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Manifest records what every pipeline run selected, split and generated
type Manifest struct {
	db *sql.DB
}

// Open opens or creates the manifest database at path
func Open(path string) (*Manifest, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create manifest directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "_busy_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer, sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Manifest{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS selections (
			run_id TEXT NOT NULL,
			rank INTEGER NOT NULL,
			gloss TEXT NOT NULL,
			PRIMARY KEY (run_id, gloss)
		);`,
		`CREATE TABLE IF NOT EXISTS split_files (
			run_id TEXT NOT NULL,
			class TEXT NOT NULL,
			split TEXT NOT NULL,
			file TEXT NOT NULL,
			PRIMARY KEY (run_id, class, file)
		);
		CREATE INDEX IF NOT EXISTS idx_split_files_split ON split_files(run_id, split);`,
		`CREATE TABLE IF NOT EXISTS augmentations (
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			output TEXT NOT NULL,
			replicate INTEGER NOT NULL,
			transforms TEXT NOT NULL,
			frames INTEGER NOT NULL,
			PRIMARY KEY (run_id, output)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manifest) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// StartRun inserts a running run of the given kind and returns its id
func (m *Manifest) StartRun(kind string) (string, error) {
	id := uuid.NewString()
	_, err := m.db.Exec(`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, StatusRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun marks the run finished, or failed when runErr is not nil
func (m *Manifest) FinishRun(runID string, runErr error) error {
	status := StatusFinished
	if runErr != nil {
		status = StatusFailed
	}
	res, err := m.db.Exec(`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// GetRun loads a run by id
func (m *Manifest) GetRun(runID string) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := m.db.QueryRow(`SELECT id, kind, status, started_at, finished_at FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Kind, &r.Status, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// RecordSelection stores the selected glosses in rank order
func (m *Manifest) RecordSelection(runID string, glosses []string) error {
	return m.inTx(`INSERT OR REPLACE INTO selections (run_id, rank, gloss) VALUES (?, ?, ?)`, func(stmt *sql.Stmt) error {
		for i, g := range glosses {
			if _, err := stmt.Exec(runID, i, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// Selection returns the glosses recorded for a run in rank order
func (m *Manifest) Selection(runID string) ([]string, error) {
	rows, err := m.db.Query(`SELECT gloss FROM selections WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query selection: %w", err)
	}
	defer rows.Close()

	var glosses []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		glosses = append(glosses, g)
	}
	return glosses, rows.Err()
}

// RecordSplit stores the files of one class assigned to split
func (m *Manifest) RecordSplit(runID, class, split string, files []string) error {
	return m.inTx(`INSERT OR REPLACE INTO split_files (run_id, class, split, file) VALUES (?, ?, ?, ?)`, func(stmt *sql.Stmt) error {
		for _, f := range files {
			if _, err := stmt.Exec(runID, class, split, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// SplitCounts returns the number of files per split for a run
func (m *Manifest) SplitCounts(runID string) (map[string]int, error) {
	rows, err := m.db.Query(`SELECT split, COUNT(*) FROM split_files WHERE run_id = ? GROUP BY split`, runID)
	if err != nil {
		return nil, fmt.Errorf("query split counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			split string
			n     int
		)
		if err := rows.Scan(&split, &n); err != nil {
			return nil, err
		}
		counts[split] = n
	}
	return counts, rows.Err()
}

// RecordAugmentations stores the replicates written by an augmentation run
func (m *Manifest) RecordAugmentations(runID string, outputs []types.ClipMetadata) error {
	return m.inTx(`INSERT OR REPLACE INTO augmentations (run_id, source, output, replicate, transforms, frames) VALUES (?, ?, ?, ?, ?, ?)`, func(stmt *sql.Stmt) error {
		for _, o := range outputs {
			transforms, err := json.Marshal(o.Transforms)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(runID, o.Source, o.Path, o.Replicate, string(transforms), o.FrameCount); err != nil {
				return err
			}
		}
		return nil
	})
}

// Augmentations returns the replicates recorded for a run, ordered by output path
func (m *Manifest) Augmentations(runID string) ([]types.ClipMetadata, error) {
	rows, err := m.db.Query(`SELECT source, output, replicate, transforms, frames FROM augmentations WHERE run_id = ? ORDER BY output`, runID)
	if err != nil {
		return nil, fmt.Errorf("query augmentations: %w", err)
	}
	defer rows.Close()

	var out []types.ClipMetadata
	for rows.Next() {
		var (
			md         types.ClipMetadata
			transforms string
		)
		if err := rows.Scan(&md.Source, &md.Path, &md.Replicate, &transforms, &md.FrameCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(transforms), &md.Transforms); err != nil {
			return nil, fmt.Errorf("decode transforms of %s: %w", md.Path, err)
		}
		md.Key = strings.TrimSuffix(filepath.Base(md.Path), filepath.Ext(md.Path))
		out = append(out, md)
	}
	return out, rows.Err()
}

func (m *Manifest) inTx(query string, fn func(stmt *sql.Stmt) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		tx.Rollback()
		return fmt.Errorf("execute statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
