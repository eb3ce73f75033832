package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/normalize"
	"github.com/xtxerr/binwatch/internal/storage/query"
)

// =============================================================================
// Ingest
// =============================================================================

func (s *Server) handleIngest(c *gin.Context) {
	s.ingest(c, normalize.SourceDevice, func(src normalize.Source, raw map[string]any) (event.Entry, error) {
		return s.engine.Ingest(src, raw)
	})
}

func (s *Server) handleSensor(c *gin.Context) {
	s.ingest(c, normalize.SourceDevice, s.engine.IngestSensor)
}

func (s *Server) handleClassification(c *gin.Context) {
	s.ingest(c, normalize.SourceVision, s.engine.IngestClassification)
}

func (s *Server) ingest(c *gin.Context, source normalize.Source, fn func(normalize.Source, map[string]any) (event.Entry, error)) {
	raw, err := bindPayload(c)
	if err != nil {
		fail(c, err)
		return
	}

	entry, err := fn(source, raw)
	s.metrics.Ingested(string(entry.Source), string(entry.Kind), entry.BinID, entry.PercentFull, err)
	if err != nil {
		// The entry is stored; only durability was lost.
		c.JSON(http.StatusAccepted, gin.H{"entry": entry, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// bindPayload decodes a JSON object body. An empty body is an empty payload.
func bindPayload(c *gin.Context) (map[string]any, error) {
	raw := map[string]any{}
	if c.Request.ContentLength == 0 {
		return raw, nil
	}
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, errors.NewInvalidValue("body", "json", err.Error())
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func (s *Server) handleAck(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.NewMissingField("id"))
		return
	}

	id, err := s.engine.Acknowledge(req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	s.metrics.Acknowledged()
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

func (s *Server) handleOverride(c *gin.Context) {
	raw, err := bindPayload(c)
	if err != nil {
		fail(c, err)
		return
	}

	cmd, entry, err := s.engine.Override(c.Request.Context(), raw)
	s.metrics.Override(err)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"entry": entry, "command": cmd, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry, "command": cmd})
}

// =============================================================================
// Events
// =============================================================================

func (s *Server) handleLast(c *gin.Context) {
	last, ok := s.engine.Last()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"last": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"last": last})
}

func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.engine.History()})
}

func (s *Server) handleClassifications(c *gin.Context) {
	limit := config.DefaultClassificationLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(c, errors.NewInvalidValue("limit", v, "not an integer"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"classifications": s.engine.Classifications(event.ClampLimit(limit))})
}

func (s *Server) handleExport(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="binwatch-history.csv"`)
	c.Status(http.StatusOK)
	if err := s.engine.ExportCSV(c.Writer); err != nil {
		logging.WithContext(c.Request.Context()).Warn("csv export aborted", "error", err)
	}
}

// =============================================================================
// Bins and forecasts
// =============================================================================

func (s *Server) handleBins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bins": s.engine.Bins()})
}

func (s *Server) handleBin(c *gin.Context) {
	status, err := s.engine.Bin(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSeries(c *gin.Context) {
	hours, err := parseHours(c.Query("hours"), config.DefaultQueryHours, config.MaxWindowHours)
	if err != nil {
		fail(c, err)
		return
	}

	binID := c.Param("id")
	points, err := s.engine.Query(binID, hours)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bin_id": binID, "hours": hours, "points": points})
}

func (s *Server) handlePredict(c *gin.Context) {
	hours, err := parseHours(c.Query("hours"), config.DefaultHorizonHours, config.MaxHorizonHours)
	if err != nil {
		fail(c, err)
		return
	}

	var strategy forecast.Strategy
	if v := c.Query("strategy"); v != "" {
		if strategy, err = forecast.ParseStrategy(v); err != nil {
			fail(c, err)
			return
		}
	}

	pred, err := s.engine.Predict(c.Param("id"), int(hours), strategy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

func (s *Server) handleStats(c *gin.Context) {
	hours, err := parseHours(c.Query("hours"), config.DefaultQueryHours, config.MaxWindowHours)
	if err != nil {
		fail(c, err)
		return
	}

	summary, err := s.engine.Stats(c.Param("id"), hours)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handlePickups(c *gin.Context) {
	horizon, err := parseHours(c.Query("horizon"), config.DefaultHorizonHours, config.MaxWindowHours)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"horizon_hours": horizon, "pickups": s.engine.RankPickups(horizon)})
}

func (s *Server) handleDaily(c *gin.Context) {
	if s.query == nil {
		fail(c, errors.Wrap(errors.ErrNotRunning, "archive queries disabled"))
		return
	}

	q := query.DailyQuery{BinID: c.Param("id")}
	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			fail(c, errors.NewInvalidValue("days", v, "must be a positive integer"))
			return
		}
		q.StartTime = time.Now().UTC().AddDate(0, 0, -days)
	}

	rows, err := s.query.Daily(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bin_id": q.BinID, "days": rows})
}

func (s *Server) handleStatus(c *gin.Context) {
	out := gin.H{
		"events": s.engine.Events().Stats(),
		"series": s.engine.Series().Stats(),
	}
	if s.hub != nil {
		out["broadcast"] = s.hub.Stats()
	}
	if s.query != nil {
		out["query"] = s.query.Stats()
	}
	for name, fn := range s.status {
		out[name] = fn()
	}
	c.JSON(http.StatusOK, out)
}
