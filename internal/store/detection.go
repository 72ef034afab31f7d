package store

import (
	"database/sql"
	"time"
)

// Detection is the stored outcome of one processed frame.
type Detection struct {
	ID        int64
	RunID     string
	Seq       uint64
	Found     bool
	XMin      int
	XMax      int
	YMin      int
	YMax      int
	Elapsed   time.Duration
	CreatedAt time.Time
}

// RunStats summarises the detections of a run.
type RunStats struct {
	Frames int
	Found  int
}

// DetectionRepository provides operations for per-frame detections.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Add inserts a detection. The run must exist.
func (r *DetectionRepository) Add(d *Detection) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO detections (run_id, seq, found, xmin, xmax, ymin, ymax, elapsed_us, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, int64(d.Seq), d.Found, d.XMin, d.XMax, d.YMin, d.YMax,
		d.Elapsed.Microseconds(), d.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

// ListByRun returns the detections of a run in frame order. A limit of zero
// or less returns all of them.
func (r *DetectionRepository) ListByRun(runID string, limit int) ([]*Detection, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, run_id, seq, found, xmin, xmax, ymin, ymax, elapsed_us, created_at
		 FROM detections WHERE run_id = ? ORDER BY seq LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []*Detection
	for rows.Next() {
		d := &Detection{}
		var seq, elapsedUS int64

		err := rows.Scan(&d.ID, &d.RunID, &seq, &d.Found, &d.XMin, &d.XMax, &d.YMin, &d.YMax, &elapsedUS, &d.CreatedAt)
		if err != nil {
			return nil, err
		}

		d.Seq = uint64(seq)
		d.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		detections = append(detections, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return detections, nil
}

// Stats counts the frames and hits recorded for a run.
func (r *DetectionRepository) Stats(runID string) (RunStats, error) {
	var stats RunStats
	var found sql.NullInt64

	err := r.db.QueryRow(
		`SELECT COUNT(*), SUM(found) FROM detections WHERE run_id = ?`,
		runID,
	).Scan(&stats.Frames, &found)
	if err != nil {
		return RunStats{}, err
	}

	stats.Found = int(found.Int64)
	return stats, nil
}
