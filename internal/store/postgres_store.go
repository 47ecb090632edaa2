package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

const (
	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 10
	defaultDBConnMaxLifetime = 30 * time.Minute
	defaultDBConnMaxIdleTime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, domain.InvalidArgument("DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, domain.Internal("failed to open postgres connection", err)
	}
	db.SetMaxOpenConns(defaultDBMaxOpenConns)
	db.SetMaxIdleConns(defaultDBMaxIdleConns)
	db.SetConnMaxLifetime(defaultDBConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultDBConnMaxIdleTime)

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load() error {
	pingCtx, cancel := context.WithTimeout(context.Background(), defaultDBPingTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return domain.Internal("failed to connect to postgres", err)
	}
	return s.verifySchemaReady()
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) verifySchemaReady() error {
	requiredTables := []string{
		"samples",
		"jobs",
		"job_events",
	}

	for _, tableName := range requiredTables {
		var exists bool
		if err := s.db.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, "public."+tableName).Scan(&exists); err != nil {
			return domain.Internal("failed to verify database schema", err)
		}
		if !exists {
			return domain.FailedPrecondition(fmt.Sprintf("required table %q is missing; run database migrations before starting the tuner server", tableName))
		}
	}
	return nil
}

func (s *PostgresStore) CountSampleTags() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT tag, COUNT(*)
		FROM samples, UNNEST(tags) AS tag
		GROUP BY tag
	`)
	if err != nil {
		return nil, domain.Internal("failed to count sample tags", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var tag string
		var count int
		if err := rows.Scan(&tag, &count); err != nil {
			return nil, domain.Internal("failed to decode tag count row", err)
		}
		counts[tag] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate tag count rows", err)
	}
	return counts, nil
}

func (s *PostgresStore) CountSamples() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&count); err != nil {
		return 0, domain.Internal("failed to count samples", err)
	}
	return count, nil
}

func (s *PostgresStore) ListSamples() ([]domain.Sample, error) {
	rows, err := s.db.Query(`
		SELECT id, filepath, tags, created_at
		FROM samples
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, domain.Internal("failed to list samples", err)
	}
	defer rows.Close()

	items := []domain.Sample{}
	for rows.Next() {
		var item domain.Sample
		var createdAt time.Time
		if err := rows.Scan(&item.ID, &item.Filepath, &item.Tags, &createdAt); err != nil {
			return nil, domain.Internal("failed to decode sample row", err)
		}
		item.CreatedAt = formatTime(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate sample rows", err)
	}
	return items, nil
}

func (s *PostgresStore) AddSamples(samples []domain.Sample) error {
	for _, sample := range samples {
		createdAt, err := parseTimestamp(sample.CreatedAt)
		if err != nil {
			return domain.Internal("sample created_at is invalid", err)
		}
		_, err = s.db.Exec(`
			INSERT INTO samples (id, filepath, tags, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET filepath = EXCLUDED.filepath,
			    tags = EXCLUDED.tags
		`, sample.ID, sample.Filepath, sample.Tags, createdAt)
		if err != nil {
			return domain.Internal("failed to upsert sample", err)
		}
	}
	return nil
}

func (s *PostgresStore) TagSamples(ids []string, tags []string) (int, error) {
	result, err := s.db.Exec(`
		UPDATE samples
		SET tags = (
			SELECT ARRAY(SELECT DISTINCT t FROM UNNEST(tags || $2::text[]) AS t)
		)
		WHERE id = ANY($1::text[])
	`, ids, tags)
	if err != nil {
		return 0, domain.Internal("failed to tag samples", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, domain.Internal("failed to read tag update count", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) GetJob(id string) (domain.Job, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, operator, target, params, status, result, last_error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, id)

	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, domain.Internal("failed to read job", err)
	}
	return job, true, nil
}

func (s *PostgresStore) ListJobs() ([]domain.Job, error) {
	rows, err := s.db.Query(`
		SELECT id, operator, target, params, status, result, last_error, created_at, updated_at
		FROM jobs
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, domain.Internal("failed to list jobs", err)
	}
	defer rows.Close()

	items := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, domain.Internal("failed to decode job row", err)
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate job rows", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertJob(job domain.Job) error {
	createdAt, err := parseTimestamp(job.CreatedAt)
	if err != nil {
		return domain.Internal("job created_at is invalid", err)
	}
	updatedAt, err := parseTimestamp(job.UpdatedAt)
	if err != nil {
		return domain.Internal("job updated_at is invalid", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, operator, target, params, status, result, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.ID, job.Operator, job.Target, marshalMap(job.Params), job.Status, marshalMap(job.Result), job.LastError, createdAt, updatedAt)
	if err != nil {
		return domain.Internal("failed to insert job", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJob(job domain.Job) error {
	updatedAt, err := parseTimestamp(job.UpdatedAt)
	if err != nil {
		return domain.Internal("job updated_at is invalid", err)
	}

	result, err := s.db.Exec(`
		UPDATE jobs
		SET status = $2,
		    result = $3,
		    last_error = $4,
		    updated_at = $5
		WHERE id = $1
	`, job.ID, job.Status, marshalMap(job.Result), job.LastError, updatedAt)
	if err != nil {
		return domain.Internal("failed to update job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Internal("failed to read job update count", err)
	}
	if affected == 0 {
		return domain.NotFound("job not found")
	}
	return nil
}

func (s *PostgresStore) ListJobEvents(jobID string) ([]domain.JobEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, event_type, message, data, created_at
		FROM job_events
		WHERE job_id = $1
		ORDER BY created_at, id
	`, jobID)
	if err != nil {
		return nil, domain.Internal("failed to list job events", err)
	}
	defer rows.Close()

	items := []domain.JobEvent{}
	for rows.Next() {
		var item domain.JobEvent
		var data []byte
		var createdAt time.Time
		if err := rows.Scan(&item.ID, &item.JobID, &item.Type, &item.Message, &data, &createdAt); err != nil {
			return nil, domain.Internal("failed to decode job event row", err)
		}
		item.Data = unmarshalMap(data)
		item.CreatedAt = formatTime(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("failed to iterate job event rows", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertJobEvent(event domain.JobEvent) error {
	createdAt, err := parseTimestamp(event.CreatedAt)
	if err != nil {
		return domain.Internal("job event created_at is invalid", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO job_events (id, job_id, event_type, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.JobID, event.Type, event.Message, marshalMap(event.Data), createdAt)
	if err != nil {
		return domain.Internal("failed to insert job event", err)
	}
	return nil
}

func scanJob(scan func(dest ...any) error) (domain.Job, error) {
	var job domain.Job
	var params, result []byte
	var createdAt, updatedAt time.Time
	if err := scan(
		&job.ID,
		&job.Operator,
		&job.Target,
		&params,
		&job.Status,
		&result,
		&job.LastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Job{}, err
	}
	job.Params = unmarshalMap(params)
	job.Result = unmarshalMap(result)
	job.CreatedAt = formatTime(createdAt)
	job.UpdatedAt = formatTime(updatedAt)
	return job, nil
}

func marshalMap(value map[string]any) []byte {
	if value == nil {
		return []byte("{}")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
