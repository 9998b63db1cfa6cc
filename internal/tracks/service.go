package tracks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/w2vasia/gps-track/internal/db"
	"github.com/w2vasia/gps-track/internal/gpx"
	"github.com/w2vasia/gps-track/internal/pool"
	"github.com/w2vasia/gps-track/internal/stream"
	"github.com/w2vasia/gps-track/internal/track"
)

// Record is a stored track: summary columns plus the normalized model in
// its transport form.
type Record struct {
	ID         string               `json:"id"`
	Name       string               `json:"name,omitempty"`
	Desc       string               `json:"description,omitempty"`
	Filename   string               `json:"filename,omitempty"`
	PointCount int                  `json:"point_count"`
	DistanceM  float64              `json:"distance_m"`
	CreatedAt  time.Time            `json:"created_at"`
	Data       track.TransportTrack `json:"data,omitempty"`
}

// FileResult is the per-file outcome of a batch upload: a failed file
// reports its error and never affects the rest of the batch.
type FileResult struct {
	Filename string `json:"filename"`
	ID       string `json:"id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type UploadFile struct {
	Name string
	Text string
	// ReadErr reports a failure reading the uploaded part; such a file is
	// rejected with that error and never parsed.
	ReadErr error
}

type Service struct {
	db       db.Querier
	cache    *redis.Client
	pool     *pool.Pool
	hub      *stream.Hub
	parser   *gpx.Parser
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewService wires the track store. The pool and the redis client may both
// be nil: without a pool every parse runs in-process, without redis nothing
// is cached.
func NewService(q db.Querier, cache *redis.Client, p *pool.Pool, hub *stream.Hub, logger *zap.Logger, cacheTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       q,
		cache:    cache,
		pool:     p,
		hub:      hub,
		parser:   gpx.NewParser(logger),
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// parseDocument prefers the dispatch pool and falls back to a synchronous
// in-process parse when the pool is absent or fails for infrastructure
// reasons. A malformed document is final either way.
func (s *Service) parseDocument(text string) (track.Track, error) {
	if s.pool != nil {
		t, err := s.pool.Submit(text).Await()
		if err == nil {
			return t, nil
		}
		if errors.Is(err, gpx.ErrMalformedDocument) {
			return track.Track{}, err
		}
		s.logger.Warn("pool parse failed, retrying in-process", zap.Error(err))
	}
	return s.parser.Parse(text)
}

// Ingest parses one document and stores the result.
func (s *Service) Ingest(ctx context.Context, filename, text string) (Record, error) {
	t, err := s.parseDocument(text)
	if err != nil {
		return Record{}, err
	}

	stats := track.ComputeStats(t.Segments...)
	data, err := json.Marshal(track.Serialize(t))
	if err != nil {
		return Record{}, fmt.Errorf("encode track: %w", err)
	}

	rec := Record{
		ID:         uuid.NewString(),
		Name:       t.Name,
		Desc:       t.Desc,
		Filename:   filename,
		PointCount: t.PointCount(),
		DistanceM:  stats.DistanceM,
		Data:       track.Serialize(t),
	}
	if rec.Name == "" {
		rec.Name = filename
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO tracks (id, name, description, filename, point_count, distance_m, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, rec.ID, rec.Name, rec.Desc, rec.Filename, rec.PointCount, rec.DistanceM, data)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// IngestBatch processes files independently: one bad file yields one failed
// result, the rest of the batch proceeds. Each outcome is broadcast to the
// batch's stream subscribers as it happens.
func (s *Service) IngestBatch(ctx context.Context, batchID string, files []UploadFile) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		res := FileResult{Filename: f.Name}
		if f.ReadErr != nil {
			res.Error = f.ReadErr.Error()
			s.logger.Info("file rejected",
				zap.String("filename", f.Name),
				zap.Error(f.ReadErr))
		} else if rec, err := s.Ingest(ctx, f.Name, f.Text); err != nil {
			res.Error = err.Error()
			s.logger.Info("file rejected",
				zap.String("filename", f.Name),
				zap.Error(err))
		} else {
			res.ID = rec.ID
		}
		results = append(results, res)

		if s.hub != nil && batchID != "" {
			if payload, err := json.Marshal(res); err == nil {
				s.hub.Broadcast(batchID, payload)
			}
		}
	}
	return results
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, filename, point_count, distance_m, data, created_at
		FROM tracks WHERE id=$1
	`, id)
	var rec Record
	var data []byte
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Desc, &rec.Filename, &rec.PointCount, &rec.DistanceM, &data, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return Record{}, fmt.Errorf("decode stored track: %w", err)
	}
	return rec, nil
}

// Model returns the stored track as the normalized in-memory model.
func (s *Service) Model(ctx context.Context, id string) (track.Track, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return track.Track{}, err
	}
	return track.Deserialize(rec.Data)
}

func (s *Service) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, filename, point_count, distance_m, created_at
		FROM tracks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Desc, &rec.Filename, &rec.PointCount, &rec.DistanceM, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM tracks WHERE id=$1`, id); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, statsKey(id), profileKey(id)).Err()
	}
	return nil
}

// Stats computes (or serves from cache) the aggregate statistics of a
// stored track.
func (s *Service) Stats(ctx context.Context, id string) (track.Stats, error) {
	var stats track.Stats
	if ok := s.cached(ctx, statsKey(id), &stats); ok {
		return stats, nil
	}

	t, err := s.Model(ctx, id)
	if err != nil {
		return track.Stats{}, err
	}
	stats = track.ComputeStats(t.Segments...)
	s.store(ctx, statsKey(id), stats)
	return stats, nil
}

// ProfilePoints computes (or serves from cache) the display-ready elevation
// profile of a stored track.
func (s *Service) ProfilePoints(ctx context.Context, id string) ([]track.ElevationPoint, error) {
	var points []track.ElevationPoint
	if ok := s.cached(ctx, profileKey(id), &points); ok {
		return points, nil
	}

	t, err := s.Model(ctx, id)
	if err != nil {
		return nil, err
	}
	points = track.Profile(t)
	s.store(ctx, profileKey(id), points)
	return points, nil
}

// Export renders a stored track as a GPX document.
func (s *Service) Export(ctx context.Context, id string) ([]byte, error) {
	t, err := s.Model(ctx, id)
	if err != nil {
		return nil, err
	}
	return gpx.Export(t)
}

func (s *Service) cached(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func statsKey(id string) string   { return "track:" + id + ":stats" }
func profileKey(id string) string { return "track:" + id + ":profile" }
