package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore keeps the whole store in one human-readable JSON document and
// rewrites it on every mutation. All mutations are serialized through a
// store-wide mutex so concurrent writers cannot lose each other's updates,
// and the file is replaced via temp-file + rename.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// fileDoc is the on-disk shape: {"surveys": {id: record}}.
type fileDoc struct {
	Surveys map[string]*SurveyRecord `json:"surveys"`
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// load reads the backing file. A missing or corrupt file is treated as an
// empty store rather than an error.
func (s *FileStore) load() fileDoc {
	doc := fileDoc{Surveys: map[string]*SurveyRecord{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Surveys == nil {
		doc.Surveys = map[string]*SurveyRecord{}
	}
	return doc
}

func (s *FileStore) write(doc fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func (s *FileStore) Create(_ context.Context, topic string) (*SurveyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &SurveyRecord{
		ID:        uuid.NewString(),
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
		Answers:   []Answer{},
		Chat:      []ChatTurn{},
	}
	doc := s.load()
	doc.Surveys[rec.ID] = rec
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return cloneRecord(rec), nil
}

func (s *FileStore) AppendAnswers(_ context.Context, id string, answers []Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	rec, ok := doc.Surveys[id]
	if !ok {
		return ErrNotFound
	}
	rec.Answers = append(rec.Answers, answers...)
	return s.write(doc)
}

func (s *FileStore) SaveSummary(_ context.Context, id string, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	rec, ok := doc.Surveys[id]
	if !ok {
		return ErrNotFound
	}
	rec.Summary = &summary
	return s.write(doc)
}

func (s *FileStore) AppendChatTurns(_ context.Context, id string, turns []ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	rec, ok := doc.Surveys[id]
	if !ok {
		return ErrNotFound
	}
	rec.Chat = append(rec.Chat, turns...)
	return s.write(doc)
}

func (s *FileStore) Get(_ context.Context, id string) (*SurveyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.load()
	rec, ok := doc.Surveys[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *FileStore) List(_ context.Context) ([]SurveyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.load()
	infos := make([]SurveyInfo, 0, len(doc.Surveys))
	for _, rec := range doc.Surveys {
		infos = append(infos, SurveyInfo{ID: rec.ID, Topic: rec.Topic, CreatedAt: rec.CreatedAt})
	}
	return infos, nil
}

func (s *FileStore) Close() error { return nil }

func cloneRecord(rec *SurveyRecord) *SurveyRecord {
	c := *rec
	c.Answers = append([]Answer(nil), rec.Answers...)
	c.Chat = append([]ChatTurn(nil), rec.Chat...)
	if rec.Summary != nil {
		sum := *rec.Summary
		sum.Insights = append([]string(nil), rec.Summary.Insights...)
		sum.Recommendations = append([]string(nil), rec.Summary.Recommendations...)
		c.Summary = &sum
	}
	return &c
}
