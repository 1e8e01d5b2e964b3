package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/courtsidelabs/painttrack/internal/export"
	"github.com/courtsidelabs/painttrack/internal/store"
)

var errMissingStoreService = errors.New("store service dependency required")

// Dependencies bundles what the HTTP handler needs.
type Dependencies struct {
	StoreService *store.Service
	CORSOrigins  []string
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewHTTPHandler builds the remote store router: idempotent touch-event
// upsert, possession registration, audit queries, CSV export and health.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.StoreService == nil {
		return nil, errMissingStoreService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	corsConfig := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(deps.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = deps.CORSOrigins
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig))

	handler := &httpHandler{
		storeService: deps.StoreService,
		clock:        clock,
		logger:       logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/touch-events", handler.handleUpsertTouchEvent)
	router.GET("/touch-events", handler.handleListTouchEvents)
	router.POST("/possessions", handler.handleEnsurePossession)
	router.GET("/possessions", handler.handleListPossessions)
	router.GET("/possessions/:id/export.csv", handler.handleExportCSV)

	return router, nil
}

type httpHandler struct {
	storeService *store.Service
	clock        func() time.Time
	logger       *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.clock().UTC().Format(time.RFC3339),
	})
}

type touchEventPayload struct {
	LocalID      string `json:"localId"`
	PossessionID string `json:"possessionId"`
	PaintZone    string `json:"paintZone"`
	Outcome      string `json:"outcome"`
	Quarter      int    `json:"quarter"`
	Points       *int64 `json:"points,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type ackPayload struct {
	RemoteID string `json:"remoteId"`
	Created  bool   `json:"created"`
}

func (h *httpHandler) handleUpsertTouchEvent(c *gin.Context) {
	var request touchEventPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	receipt, err := h.storeService.UpsertTouchEvent(c.Request.Context(), store.TouchEventInput{
		LocalID:      request.LocalID,
		PossessionID: request.PossessionID,
		PaintZone:    request.PaintZone,
		Outcome:      request.Outcome,
		Quarter:      request.Quarter,
		Points:       request.Points,
		Notes:        request.Notes,
		Timestamp:    request.Timestamp,
	})
	if err != nil {
		var validationErr *store.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Code})
			return
		}
		h.logger.Error("touch event upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err, "upsert_failed"))
		return
	}

	status := http.StatusOK
	if receipt.Created {
		status = http.StatusCreated
	}
	c.JSON(status, ackPayload{RemoteID: receipt.RemoteID, Created: receipt.Created})
}

type storedTouchEventPayload struct {
	RemoteID     string `json:"remoteId"`
	LocalID      string `json:"localId"`
	PossessionID string `json:"possessionId"`
	PaintZone    string `json:"paintZone"`
	Outcome      string `json:"outcome"`
	Quarter      int    `json:"quarter"`
	Points       *int64 `json:"points,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

func (h *httpHandler) handleListTouchEvents(c *gin.Context) {
	possessionID := strings.TrimSpace(c.Query("possessionId"))
	if possessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_possession_id"})
		return
	}

	events, err := h.storeService.ListByPossession(c.Request.Context(), possessionID)
	if err != nil {
		var validationErr *store.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Code})
			return
		}
		h.logger.Error("touch event listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err, "list_failed"))
		return
	}

	response := make([]storedTouchEventPayload, 0, len(events))
	for _, event := range events {
		response = append(response, storedTouchEventPayload{
			RemoteID:     event.RemoteID,
			LocalID:      event.LocalID,
			PossessionID: event.PossessionID,
			PaintZone:    event.PaintZone,
			Outcome:      event.Outcome,
			Quarter:      event.Quarter,
			Points:       event.Points,
			Notes:        event.Notes,
			Timestamp:    event.TimestampSeconds,
		})
	}
	c.JSON(http.StatusOK, response)
}

type possessionPayload struct {
	PossessionID string `json:"possessionId"`
	Name         string `json:"name"`
	Opponent     string `json:"opponent,omitempty"`
	GameDate     string `json:"gameDate,omitempty"`
}

func (h *httpHandler) handleEnsurePossession(c *gin.Context) {
	var request possessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	possession, created, err := h.storeService.EnsurePossession(c.Request.Context(), store.PossessionInput{
		PossessionID: request.PossessionID,
		Name:         request.Name,
		Opponent:     request.Opponent,
		GameDate:     request.GameDate,
	})
	if err != nil {
		var validationErr *store.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Code})
			return
		}
		h.logger.Error("possession registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err, "possession_failed"))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"possessionId": possession.PossessionID, "created": created})
}

func (h *httpHandler) handleListPossessions(c *gin.Context) {
	possessions, err := h.storeService.ListPossessions(c.Request.Context())
	if err != nil {
		h.logger.Error("possession listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err, "list_failed"))
		return
	}

	response := make([]possessionPayload, 0, len(possessions))
	for _, possession := range possessions {
		response = append(response, possessionPayload{
			PossessionID: possession.PossessionID,
			Name:         possession.Name,
			Opponent:     possession.Opponent,
			GameDate:     possession.GameDate,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleExportCSV(c *gin.Context) {
	possessionID := strings.TrimSpace(c.Param("id"))

	possession, err := h.storeService.GetPossession(c.Request.Context(), possessionID)
	if err != nil {
		if errors.Is(err, store.ErrPossessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "possession_not_found"})
			return
		}
		var validationErr *store.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Code})
			return
		}
		h.logger.Error("possession lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err, "export_failed"))
		return
	}

	events, err := h.storeService.ListByPossession(c.Request.Context(), possessionID)
	if err != nil {
		h.logger.Error("export listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err, "export_failed"))
		return
	}

	rows := make([]export.Row, 0, len(events))
	for _, event := range events {
		rows = append(rows, export.Row{
			LocalID:      event.LocalID,
			RemoteID:     event.RemoteID,
			PossessionID: event.PossessionID,
			PaintZone:    event.PaintZone,
			Outcome:      event.Outcome,
			Quarter:      event.Quarter,
			Points:       event.Points,
			Notes:        event.Notes,
			Timestamp:    event.TimestampSeconds,
			SyncState:    "synced",
		})
	}

	filename := fmt.Sprintf("%s.csv", strings.ReplaceAll(possession.Name, " ", "_"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	if err := export.WriteRows(c.Writer, rows); err != nil {
		h.logger.Error("export rendering failed", zap.Error(err))
	}
}

func errorPayload(err error, fallback string) gin.H {
	var serviceErr *store.ServiceError
	if errors.As(err, &serviceErr) {
		return gin.H{"error": fallback, "code": serviceErr.Code()}
	}
	return gin.H{"error": fallback}
}
