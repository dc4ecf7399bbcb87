package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// RecordStore is the row storage behind /rest.
type RecordStore interface {
	Insert(ctx context.Context, table string, data schema.Record) (schema.Record, error)
	Select(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error)
	UpdateReturningPrevious(ctx context.Context, table, id string, partial schema.Record) (schema.Record, schema.Record, error)
	DeleteReturningPrevious(ctx context.Context, table, id string) (schema.Record, error)
	Tables(ctx context.Context) ([]string, error)
}

// Publisher fans change events out to realtime subscribers.
type Publisher interface {
	Publish(ev schema.ChangeEvent)
}

type Handler struct {
	Records  RecordStore
	Accounts AccountStore
	Events   Publisher
	// SessionTTL is how long issued tokens stay valid.
	SessionTTL time.Duration
	// Ping reports backend health; nil means always healthy.
	Ping func(ctx context.Context) error
	Now  func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) publish(typ schema.ChangeType, table string, rec, old schema.Record) {
	if h.Events == nil {
		return
	}
	h.Events.Publish(schema.ChangeEvent{
		Type:      typ,
		Table:     table,
		Record:    rec,
		OldRecord: old,
		Timestamp: h.now().UTC(),
	})
}

// recordStatus maps storage errors onto HTTP statuses.
func recordStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidTable), errors.Is(err, engine.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.Records.Tables(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tables == nil {
		tables = []string{}
	}
	c.JSON(http.StatusOK, tables)
}

// Select answers GET /rest/:table?where={"field":value,...}.
func (h *Handler) Select(c *gin.Context) {
	table := c.Param("table")

	var filters schema.Filters
	if where := c.Query("where"); where != "" {
		if err := json.Unmarshal([]byte(where), &filters); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "where must be a JSON object of equality conditions"})
			return
		}
	}

	records, err := h.Records.Select(c.Request.Context(), table, filters)
	if err != nil {
		c.JSON(recordStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) Insert(c *gin.Context) {
	table := c.Param("table")

	var data schema.Record
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Records.Insert(c.Request.Context(), table, data)
	if err != nil {
		c.JSON(recordStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.publish(schema.ChangeInsert, table, rec, nil)
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Update(c *gin.Context) {
	table := c.Param("table")
	id := c.Param("id")

	var partial schema.Record
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, old, err := h.Records.UpdateReturningPrevious(c.Request.Context(), table, id, partial)
	if err != nil {
		c.JSON(recordStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.publish(schema.ChangeUpdate, table, rec, old)
	c.JSON(http.StatusOK, rec)
}

// Delete is idempotent: a missing record still answers 204.
func (h *Handler) Delete(c *gin.Context) {
	table := c.Param("table")
	id := c.Param("id")

	old, err := h.Records.DeleteReturningPrevious(c.Request.Context(), table, id)
	if err != nil {
		c.JSON(recordStatus(err), gin.H{"error": err.Error()})
		return
	}
	if old != nil {
		h.publish(schema.ChangeDelete, table, nil, old)
	}
	c.Status(http.StatusNoContent)
}
