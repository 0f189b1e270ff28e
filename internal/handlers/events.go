package handlers

import (
	"net/http"
	"strconv"
	"time"

	"factory_events/internal/models"

	"github.com/gin-gonic/gin"
)

// Common response constants to avoid magic strings and typos.
const (
	statusOK = "ok"

	errInvalidBodyPref  = "invalid body: "
	errMachineIDMissing = "machineId is required"
	errFactoryIDMissing = "factoryId is required"
	errStartInvalid     = "invalid 'start' time; use RFC3339 UTC"
	errEndInvalid       = "invalid 'end' time; use RFC3339 UTC"
	errFromInvalid      = "invalid 'from' time; use RFC3339 UTC"
	errToInvalid        = "invalid 'to' time; use RFC3339 UTC"
	errLimitInvalid     = "invalid 'limit'; must be an integer"
	errIngestFailed     = "failed to ingest batch"
	errStatsFailed      = "failed to load stats"
	errTopLinesFailed   = "failed to load top defect lines"
)

const defaultTopLinesLimit = 10

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err, "request_id", requestID(c)}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// requiredTimeQuery reads a mandatory RFC3339 query parameter. On failure it
// writes the 400 response itself and reports ok=false.
func (h *Handler) requiredTimeQuery(c *gin.Context, name, userMsg string) (time.Time, bool) {
	qs := c.Query(name)
	if qs == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": userMsg})
		return time.Time{}, false
	}
	t, err := parseRFC3339(qs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": userMsg})
		return time.Time{}, false
	}
	return t, true
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Ingest a batch of machine events
// @Description  Validates and reconciles an ordered list of raw events; duplicates dedup, newer payloads update, invalid records are rejected per record.
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        body  body      []models.RawEvent  true  "Ordered list of raw events"
// @Success      200   {object}  models.BatchResult
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/events/batch [post]
func (h *Handler) ingestBatch(c *gin.Context) {
	var batch []models.RawEvent
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	res, err := h.services.Ingestor.IngestBatch(c.Request.Context(), batch)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errIngestFailed, "ingest_batch_failed", err, "batch_size", len(batch))
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Windowed machine stats
// @Description  Event count, defect total and defects-per-hour for one machine over [start, end). Unknown defect counts (-1) are excluded from totals.
// @Tags         stats
// @Produce      json
// @Param        machineId  query  string  true  "Machine id"
// @Param        start      query  string  true  "Window start (RFC3339 UTC, inclusive)"
// @Param        end        query  string  true  "Window end (RFC3339 UTC, exclusive)"
// @Success      200  {object}  models.MachineStats
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	machineID := c.Query("machineId")
	if machineID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMachineIDMissing})
		return
	}
	start, ok := h.requiredTimeQuery(c, "start", errStartInvalid)
	if !ok {
		return
	}
	end, ok := h.requiredTimeQuery(c, "end", errEndInvalid)
	if !ok {
		return
	}

	stats, err := h.services.Stats.GetStats(c.Request.Context(), machineID, start, end)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStatsFailed, "get_stats_failed", err, "machine_id", machineID)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary      Top defect lines for a factory
// @Description  Lines ranked by total defects over [from, to); ties broken by line id. Sentinel defect counts are excluded from totals but not from event counts.
// @Tags         stats
// @Produce      json
// @Param        factoryId  query  string  true   "Factory id"
// @Param        from       query  string  true   "Window start (RFC3339 UTC, inclusive)"
// @Param        to         query  string  true   "Window end (RFC3339 UTC, exclusive)"
// @Param        limit      query  int     false  "Max rows (default 10)"
// @Success      200  {array}   models.DefectLineStat
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/stats/top-defect-lines [get]
func (h *Handler) getTopDefectLines(c *gin.Context) {
	factoryID := c.Query("factoryId")
	if factoryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errFactoryIDMissing})
		return
	}
	from, ok := h.requiredTimeQuery(c, "from", errFromInvalid)
	if !ok {
		return
	}
	to, ok := h.requiredTimeQuery(c, "to", errToInvalid)
	if !ok {
		return
	}

	limit := defaultTopLinesLimit
	if qs := c.Query("limit"); qs != "" {
		v, err := strconv.Atoi(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
		limit = v
	}

	lines, err := h.services.Stats.GetTopDefectLines(c.Request.Context(), factoryID, from, to, limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errTopLinesFailed, "top_defect_lines_failed", err, "factory_id", factoryID)
		return
	}
	c.JSON(http.StatusOK, lines)
}
