// Package httpapi exposes the backend surface the classroom monitors and
// camera clients talk to: schedule and roster reads, sighting ingestion,
// attendance recording, unknown captures, session reports and absence
// notifications.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"classwatch/internal/accounting"
	"classwatch/internal/attendance"
	"classwatch/internal/auth"
	"classwatch/internal/cloudinary"
	"classwatch/internal/config"
	"classwatch/internal/faceclient"
	"classwatch/internal/notify"
	"classwatch/internal/queue"
	"classwatch/internal/report"
	"classwatch/internal/sighting"
	"classwatch/internal/store"
)

// Handler carries the api's collaborators. cloud and mailer may be nil when
// the corresponding credentials are not configured.
type Handler struct {
	cfg    config.App
	svc    *attendance.Service
	repo   *attendance.Repository
	db     *store.DB
	redis  *store.Redis
	q      queue.Queue
	cloud  *cloudinary.Client
	mailer *report.Mailer
	sms    *notify.SMSClient
	face   *faceclient.Client
}

// New wires a handler.
func New(cfg config.App, svc *attendance.Service, repo *attendance.Repository, db *store.DB, redis *store.Redis, q queue.Queue, cloud *cloudinary.Client, mailer *report.Mailer, sms *notify.SMSClient, face *faceclient.Client) *Handler {
	return &Handler{cfg: cfg, svc: svc, repo: repo, db: db, redis: redis, q: q, cloud: cloud, mailer: mailer, sms: sms, face: face}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/devices/register", h.RegisterDevice)

	authed := r.Group("/v1", auth.DeviceAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	authed.GET("/schedule", h.Schedule)
	authed.GET("/roster", h.Roster)
	authed.POST("/sightings", h.PostSighting)
	authed.POST("/unknowns", h.PostUnknown)
	authed.POST("/identify", h.Identify)
	authed.POST("/attendance/:sessionID", h.RecordAttendance)
	authed.POST("/attendance/:sessionID/unknowns", h.RecordUnknowns)
	authed.GET("/attendance", h.ListAttendance)
	authed.POST("/reports/:sessionID", h.SendReport)
	authed.POST("/notifications/:sessionID", h.NotifyAbsentees)
}

// Healthz reports database and redis connectivity.
func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealthy := h.db.Healthy(ctx)
	redisHealthy := h.redis.Healthy(ctx)
	status := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
}

// RegisterDevice registers a camera or monitor and issues its token pair.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.RegisterDevice(c.Request.Context(), req.DeviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := auth.Issue(req.DeviceID, "device", h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = h.repo.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp)

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// Schedule returns today's entries for a room.
func (h *Handler) Schedule(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}
	entries, err := h.svc.TodaySchedule(c.Request.Context(), room, time.Now().Weekday())
	if err != nil {
		if errors.Is(err, attendance.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(entries) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no schedule registered for this room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Roster returns everyone enrolled in a session.
func (h *Handler) Roster(c *gin.Context) {
	sessionID, ok := h.sessionIDQuery(c)
	if !ok {
		return
	}
	roster, err := h.svc.Roster(c.Request.Context(), sessionID)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": roster})
}

type sightingRequest struct {
	Room     string        `json:"room" binding:"required"`
	PersonID string        `json:"person_id" binding:"required"`
	Role     sighting.Role `json:"role"`
	SeenAt   string        `json:"seen_at" binding:"required"`
}

// PostSighting validates a recognition event and hands it to the queue for
// the room's monitor.
func (h *Handler) PostSighting(c *gin.Context) {
	var req sightingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sg := sighting.Sighting{PersonID: req.PersonID, Role: req.Role, SeenAt: req.SeenAt}
	if err := h.svc.ValidateSighting(sg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, _ := json.Marshal(req)
	if err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeSighting, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type unknownMessage struct {
	Room       string    `json:"room"`
	ImageURL   string    `json:"image_url"`
	CapturedAt time.Time `json:"captured_at"`
}

// PostUnknown uploads an unmatched capture, then queues its URL so the
// room's monitor can attach it to the open session.
func (h *Handler) PostUnknown(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	var result *cloudinary.UploadResult
	var err error
	switch {
	case strings.Contains(c.ContentType(), "multipart/form-data"):
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
		result, err = h.cloud.UploadBytes(data, header.Filename)
	default:
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
			return
		}
		result, err = h.cloud.UploadBase64(body.Data)
	}
	if err != nil {
		log.Printf("cloudinary upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}

	msg := unknownMessage{Room: room, ImageURL: result.SecureURL, CapturedAt: time.Now()}
	body, _ := json.Marshal(msg)
	if err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeUnknown, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "public_id": result.PublicID})
}

// Identify resolves a capture against the face service, narrowed to the
// session's roster when a session id is supplied.
func (h *Handler) Identify(c *gin.Context) {
	var req struct {
		ImageURL  string `json:"image_url" binding:"required"`
		SessionID int64  `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var candidates []string
	if req.SessionID != 0 {
		roster, err := h.svc.Roster(c.Request.Context(), req.SessionID)
		if err != nil {
			h.sessionError(c, err)
			return
		}
		for _, m := range roster {
			candidates = append(candidates, m.PersonID)
		}
	}

	result, err := h.face.Identify(c.Request.Context(), req.ImageURL, candidates)
	if err != nil {
		log.Printf("face identify failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face service failed"})
		return
	}
	if !result.Known {
		c.JSON(http.StatusOK, gin.H{"known": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"known":      true,
		"person_id":  result.PersonID,
		"role":       int(result.Role),
		"similarity": result.Similarity,
	})
}

// RecordAttendance persists a batch of verdicts for a session.
func (h *Handler) RecordAttendance(c *gin.Context) {
	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Date     string               `json:"date"`
		Verdicts []accounting.Verdict `json:"verdicts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, ok := h.parseDate(c, req.Date)
	if !ok {
		return
	}
	for _, v := range req.Verdicts {
		if !validState(v.State) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state " + string(v.State)})
			return
		}
	}

	students, teachers, err := h.svc.RecordVerdicts(c.Request.Context(), sessionID, date, req.Verdicts)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"students": students, "teachers": teachers})
}

// RecordUnknowns persists unknown-capture references for a session.
func (h *Handler) RecordUnknowns(c *gin.Context) {
	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Date      string   `json:"date"`
		ImageURLs []string `json:"image_urls" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, ok := h.parseDate(c, req.Date)
	if !ok {
		return
	}
	if err := h.svc.RecordUnknowns(c.Request.Context(), sessionID, date, req.ImageURLs); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recorded": len(req.ImageURLs)})
}

// ListAttendance lists recorded attendance for a session.
func (h *Handler) ListAttendance(c *gin.Context) {
	sessionID, ok := h.sessionIDQuery(c)
	if !ok {
		return
	}
	date, ok := h.parseOptionalDate(c)
	if !ok {
		return
	}
	records, err := h.repo.RecordsForSession(c.Request.Context(), sessionID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// SendReport builds the session's CSV report and emails it.
func (h *Handler) SendReport(c *gin.Context) {
	if h.mailer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report mail not configured"})
		return
	}
	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}
	room := c.Query("room")
	date, ok := h.parseOptionalDate(c)
	if !ok {
		return
	}
	if date.IsZero() {
		date = today()
	}

	ctx := c.Request.Context()
	records, err := h.repo.RecordsForSession(ctx, sessionID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	unknowns, err := h.repo.UnknownsForSession(ctx, sessionID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.mailer.SendSessionReport(ctx, room, sessionID, records, unknowns); err != nil {
		log.Printf("session %d report failed: %v", sessionID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "report delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "report sent", "records": len(records), "unknowns": len(unknowns)})
}

// NotifyAbsentees texts the contact of every student marked absent today.
// Students without a contact on file are skipped and counted, not treated
// as failures.
func (h *Handler) NotifyAbsentees(c *gin.Context) {
	if !h.sms.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sms gateway not configured"})
		return
	}
	sessionID, ok := h.sessionIDParam(c)
	if !ok {
		return
	}
	date, ok := h.parseOptionalDate(c)
	if !ok {
		return
	}
	if date.IsZero() {
		date = today()
	}

	ctx := c.Request.Context()
	absentees, err := h.repo.AbsentStudents(ctx, sessionID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	notified, skipped, failed := 0, 0, 0
	for _, p := range absentees {
		if p.Contact == "" {
			skipped++
			continue
		}
		if err := h.sms.Send(ctx, p.Contact, notify.AbsenceMessage(p)); err != nil {
			log.Printf("absence sms to %s failed: %v", p.ID, err)
			failed++
			continue
		}
		notified++
	}
	c.JSON(http.StatusOK, gin.H{"absent": len(absentees), "notified": notified, "skipped": skipped, "failed": failed})
}

func (h *Handler) sessionIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("sessionID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) sessionIDQuery(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("session_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return 0, false
	}
	return id, true
}

func (h *Handler) parseDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return today(), true
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

func (h *Handler) parseOptionalDate(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return time.Time{}, true
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, attendance.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func validState(s accounting.State) bool {
	switch s {
	case accounting.StatePresent, accounting.StateLate, accounting.StateAbsent:
		return true
	}
	return false
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
