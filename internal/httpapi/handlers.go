package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"auditlog-service/internal/auditlog"
	"auditlog-service/internal/auth"
	"auditlog-service/internal/metrics"
	"auditlog-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Logs    *auditlog.Service
	Metrics *metrics.Metrics
}

// headerRequestID carries the caller-supplied idempotency key.
const headerRequestID = "X-Request-Id"

type fieldErrors map[string][]string

func (fe fieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

func validationFailed(c *gin.Context, message string, errs fieldErrors) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"message": message,
		"errors":  errs,
	})
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: Credential validation is delegated to the deployment's identity
// provider; this endpoint only mints tokens for already-trusted principals.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Audit logs ---

type createAuditLogRequest struct {
	ActorID      *string         `json:"actor_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Payload      json.RawMessage `json:"payload"`
}

// CreateAuditLog ingests one event idempotently, keyed by the X-Request-Id
// header. 201 on create, 200 on idempotent replay, 409 when the key was
// already used with a different body.
func (h Handlers) CreateAuditLog(c *gin.Context) {
	requestID := c.GetHeader(headerRequestID)
	if requestID == "" || uuid.Validate(requestID) != nil {
		h.Metrics.ObserveIngest(metrics.IngestRejected)
		validationFailed(c, "X-Request-Id must be a valid UUID", fieldErrors{
			"request_id": {"X-Request-Id must be a valid UUID"},
		})
		return
	}

	var req createAuditLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.ObserveIngest(metrics.IngestRejected)
		validationFailed(c, "The request body is invalid.", fieldErrors{
			"body": {"Request body must be valid JSON."},
		})
		return
	}
	if errs := validateCreate(req); len(errs) > 0 {
		h.Metrics.ObserveIngest(metrics.IngestRejected)
		validationFailed(c, "The given data was invalid.", errs)
		return
	}

	rec, created, err := h.Logs.Ingest(c.Request.Context(), auditlog.IngestInput{
		RequestID:    requestID,
		ActorID:      req.ActorID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Payload:      req.Payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, auditlog.ErrRequestIDConflict):
			h.Metrics.ObserveIngest(metrics.IngestConflict)
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"message": "X-Request-Id was already used with a different request body.",
				"errors": fieldErrors{
					"request_id": {"Duplicate X-Request-Id with different body."},
				},
			})
		case errors.Is(err, auditlog.ErrInvalidArgument):
			h.Metrics.ObserveIngest(metrics.IngestRejected)
			validationFailed(c, "The given data was invalid.", fieldErrors{
				"body": {err.Error()},
			})
		default:
			h.Metrics.ObserveIngest(metrics.IngestFailed)
			logger.FromGin(c).Error("audit log ingest failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"message": "Audit log storage is unavailable.",
			})
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.Metrics.ObserveIngest(metrics.IngestCreated)
	} else {
		h.Metrics.ObserveIngest(metrics.IngestReplayed)
	}
	c.JSON(status, gin.H{"data": rec})
}

func validateCreate(req createAuditLogRequest) fieldErrors {
	errs := fieldErrors{}
	if req.ActorID != nil && uuid.Validate(*req.ActorID) != nil {
		errs.add("actor_id", "actor_id must be a valid UUID")
	}
	for _, f := range []struct{ name, value string }{
		{"action", req.Action},
		{"resource_type", req.ResourceType},
		{"resource_id", req.ResourceID},
	} {
		if f.value == "" {
			errs.add(f.name, "The "+f.name+" field is required.")
		} else if len(f.value) > auditlog.MaxFieldLen {
			errs.add(f.name, "The "+f.name+" field must not exceed 255 characters.")
		}
	}
	if len(req.Payload) > 0 && !isStructured(req.Payload) {
		errs.add("payload", "The payload must be an object or array.")
	}
	return errs
}

// isStructured accepts only object/array payloads, matching the create
// contract (scalars are not a valid event detail).
func isStructured(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// ListAuditLogs serves the cursor-paginated descending scan.
func (h Handlers) ListAuditLogs(c *gin.Context) {
	filters, errs := parseListQuery(c)
	if len(errs) > 0 {
		validationFailed(c, "Invalid query parameters.", errs)
		return
	}

	res, err := h.Logs.List(c.Request.Context(), filters)
	if err != nil {
		if errors.Is(err, auditlog.ErrInvalidArgument) {
			validationFailed(c, "Invalid query parameters.", fieldErrors{"query": {err.Error()}})
			return
		}
		logger.FromGin(c).Error("audit log list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"message": "Audit log storage is unavailable.",
		})
		return
	}
	h.Metrics.ObserveList()

	items := res.Items
	if items == nil {
		items = []auditlog.Record{}
	}
	var nextCursor any
	if res.NextCursor != "" {
		nextCursor = res.NextCursor
	}
	limit := filters.Limit
	if limit == 0 {
		limit = auditlog.DefaultPageSize
	}
	c.JSON(http.StatusOK, gin.H{
		"data": items,
		"meta": gin.H{
			"limit":       limit,
			"has_more":    res.HasMore,
			"next_cursor": nextCursor,
		},
	})
}

func parseListQuery(c *gin.Context) (auditlog.ListFilters, fieldErrors) {
	var (
		filters auditlog.ListFilters
		errs    = fieldErrors{}
	)

	if v := c.Query("from"); v != "" {
		if ts, ok := parseTime(v); ok {
			filters.From = &ts
		} else {
			errs.add("from", "from must be a valid date/time")
		}
	}
	if v := c.Query("to"); v != "" {
		if ts, ok := parseTime(v); ok {
			filters.To = &ts
		} else {
			errs.add("to", "to must be a valid date/time")
		}
	}
	if v := c.Query("actor_id"); v != "" {
		if uuid.Validate(v) != nil {
			errs.add("actor_id", "actor_id must be a valid UUID")
		} else {
			filters.ActorID = &v
		}
	}
	if v := c.Query("action"); v != "" {
		if len(v) > auditlog.MaxFieldLen {
			errs.add("action", "action must not exceed 255 characters")
		} else {
			filters.Action = v
		}
	}
	if v := c.Query("ip"); v != "" {
		if net.ParseIP(v) == nil {
			errs.add("ip", "ip must be a valid IP address")
		} else {
			filters.IP = v
		}
	}
	if v := c.Query("limit"); v != "" {
		var n int
		if err := json.Unmarshal([]byte(v), &n); err != nil || n < 1 || n > auditlog.MaxPageSize {
			errs.add("limit", "limit must be an integer between 1 and 100")
		} else {
			filters.Limit = n
		}
	}
	filters.Cursor = c.Query("cursor")

	return filters, errs
}

// parseTime accepts the formats callers actually send for from/to bounds.
func parseTime(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// VerifyAuditLog recomputes a record's checksum and reports tampering.
func (h Handlers) VerifyAuditLog(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		validationFailed(c, "Id must be a valid UUID", fieldErrors{
			"id": {"Id must be a valid UUID"},
		})
		return
	}

	res, err := h.Logs.Verify(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, auditlog.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Log not found"})
		case errors.Is(err, auditlog.ErrInvalidArgument):
			validationFailed(c, "Id must be a valid UUID", fieldErrors{
				"id": {"Id must be a valid UUID"},
			})
		default:
			logger.FromGin(c).Error("audit log verify failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"message": "Audit log storage is unavailable.",
			})
		}
		return
	}
	h.Metrics.ObserveVerify(res.Valid)
	c.JSON(http.StatusOK, gin.H{"data": res})
}
