package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists survey records in PostgreSQL, with the append-only
// sequences held as jsonb columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS surveys (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			answers JSONB NOT NULL DEFAULT '[]'::jsonb,
			summary JSONB,
			chat JSONB NOT NULL DEFAULT '[]'::jsonb
		);`,
		`CREATE INDEX IF NOT EXISTS idx_surveys_created ON surveys (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, topic string) (*SurveyRecord, error) {
	rec := &SurveyRecord{
		ID:        uuid.NewString(),
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
		Answers:   []Answer{},
		Chat:      []ChatTurn{},
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO surveys (id, topic, created_at) VALUES ($1, $2, $3)`,
		rec.ID, rec.Topic, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create survey: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) AppendAnswers(ctx context.Context, id string, answers []Answer) error {
	payload, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE surveys SET answers = answers || $2::jsonb WHERE id = $1`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("append answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, id string, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE surveys SET summary = $2::jsonb WHERE id = $1`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendChatTurns(ctx context.Context, id string, turns []ChatTurn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode chat turns: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE surveys SET chat = chat || $2::jsonb WHERE id = $1`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("append chat turns: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*SurveyRecord, error) {
	var (
		rec     SurveyRecord
		answers []byte
		summary []byte
		chat    []byte
	)
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic, created_at, answers, summary, chat FROM surveys WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	if err := rows.Scan(&rec.ID, &rec.Topic, &rec.CreatedAt, &answers, &summary, &chat); err != nil {
		return nil, fmt.Errorf("scan survey: %w", err)
	}
	if err := json.Unmarshal(answers, &rec.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(chat, &rec.Chat); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	if len(summary) > 0 {
		rec.Summary = &Summary{}
		if err := json.Unmarshal(summary, rec.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	return &rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]SurveyInfo, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, topic, created_at FROM surveys`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()

	infos := []SurveyInfo{}
	for rows.Next() {
		var info SurveyInfo
		if err := rows.Scan(&info.ID, &info.Topic, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan survey row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate survey rows: %w", err)
	}
	return infos, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
