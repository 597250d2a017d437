package server

import (
	"time"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/history"
	"github.com/art0007i/bonk-sticks-map-converter/internal/jobs"
	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
)

type searchResponse struct {
	L []catalog.SimpleMapInfo `json:"L"`
}

type statusResponse struct {
	StartedAt time.Time       `json:"started_at"`
	LockFile  string          `json:"lock_file"`
	Jobs      []jobs.Status   `json:"jobs"`
	Cache     *mapcache.Stats `json:"cache,omitempty"`
}

type historyResponse struct {
	Records []historyRecord `json:"records"`
}

type historyRecord struct {
	MapID         string    `json:"map_id"`
	Name          string    `json:"name,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Difficulties  int       `json:"difficulties"`
	Cached        bool      `json:"cached"`
	FinishedAt    time.Time `json:"finished_at"`
}

func fromRecord(rec history.Record) historyRecord {
	return historyRecord{
		MapID:         rec.MapID,
		Name:          rec.Name,
		Status:        string(rec.Status),
		Error:         rec.ErrorMessage,
		CorrelationID: rec.CorrelationID,
		DurationMS:    rec.Duration.Milliseconds(),
		Difficulties:  rec.Difficulties,
		Cached:        rec.Cached,
		FinishedAt:    rec.FinishedAt,
	}
}
