package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding feedback records, the decision log,
// and threshold configuration history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "finswarm.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Feedback ---

// AppendFeedback inserts one feedback record. The table is append-only;
// records are never updated or deleted.
func (s *Store) AppendFeedback(f Feedback) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, transaction_id, agent_kind, predicted_label, actual_label, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TransactionID, f.AgentKind, f.PredictedLabel, f.ActualLabel, f.Comment,
		f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FeedbackByKind returns all feedback records for one collaborator kind,
// oldest first.
func (s *Store) FeedbackByKind(kind string) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, transaction_id, agent_kind, predicted_label, actual_label, comment, created_at
		FROM feedback WHERE agent_kind = ? ORDER BY created_at ASC`, kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// RecentFeedback returns the most recent feedback records across all kinds.
func (s *Store) RecentFeedback(limit int) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, transaction_id, agent_kind, predicted_label, actual_label, comment, created_at
		FROM feedback ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedback(rows)
}

func scanFeedback(rows *sql.Rows) ([]Feedback, error) {
	var results []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.TransactionID, &f.AgentKind, &f.PredictedLabel, &f.ActualLabel, &f.Comment, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		results = append(results, f)
	}
	return results, rows.Err()
}

// --- Decisions ---

// SaveDecision appends one decision to the log.
func (s *Store) SaveDecision(d Decision) error {
	_, err := s.db.Exec(`
		INSERT INTO decisions (id, transaction_id, status, rule_fired, verdicts_json, explanation, threshold_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TransactionID, d.Status, d.RuleFired, d.VerdictsJSON, d.Explanation,
		d.ThresholdVersion, d.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetDecision fetches one decision by transaction id. When a transaction was
// processed more than once, the most recent decision wins.
func (s *Store) GetDecision(transactionID string) (Decision, error) {
	var d Decision
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, transaction_id, status, rule_fired, verdicts_json, explanation, threshold_version, created_at
		FROM decisions WHERE transaction_id = ? ORDER BY created_at DESC LIMIT 1`, transactionID,
	).Scan(&d.ID, &d.TransactionID, &d.Status, &d.RuleFired, &d.VerdictsJSON, &d.Explanation, &d.ThresholdVersion, &createdAt)
	if err == sql.ErrNoRows {
		return Decision{}, ErrNotFound
	}
	if err != nil {
		return Decision{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Decision{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// ListDecisions returns the most recent decisions.
func (s *Store) ListDecisions(limit int) ([]Decision, error) {
	rows, err := s.db.Query(`
		SELECT id, transaction_id, status, rule_fired, verdicts_json, explanation, threshold_version, created_at
		FROM decisions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Decision
	for rows.Next() {
		var d Decision
		var createdAt string
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.Status, &d.RuleFired, &d.VerdictsJSON, &d.Explanation, &d.ThresholdVersion, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- Thresholds ---

// SaveThresholds inserts a new threshold configuration row. Versions are
// assigned by the caller and must be strictly increasing; the PRIMARY KEY
// constraint rejects duplicate versions so concurrent writers cannot both
// claim the same one.
func (s *Store) SaveThresholds(row ThresholdRow) error {
	_, err := s.db.Exec(`
		INSERT INTO thresholds (version, config_json, created_at) VALUES (?, ?, ?)`,
		row.Version, row.ConfigJSON, row.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ActiveThresholds returns the highest-version threshold row.
func (s *Store) ActiveThresholds() (ThresholdRow, error) {
	var row ThresholdRow
	var createdAt string
	err := s.db.QueryRow(`
		SELECT version, config_json, created_at FROM thresholds ORDER BY version DESC LIMIT 1`,
	).Scan(&row.Version, &row.ConfigJSON, &createdAt)
	if err == sql.ErrNoRows {
		return ThresholdRow{}, ErrNotFound
	}
	if err != nil {
		return ThresholdRow{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return ThresholdRow{}, fmt.Errorf("parsing created_at: %w", err)
	}
	row.CreatedAt = t
	return row, nil
}

// ThresholdHistory returns all threshold rows, newest first.
func (s *Store) ThresholdHistory() ([]ThresholdRow, error) {
	rows, err := s.db.Query(`SELECT version, config_json, created_at FROM thresholds ORDER BY version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ThresholdRow
	for rows.Next() {
		var row ThresholdRow
		var createdAt string
		if err := rows.Scan(&row.Version, &row.ConfigJSON, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		row.CreatedAt = t
		results = append(results, row)
	}
	return results, rows.Err()
}
