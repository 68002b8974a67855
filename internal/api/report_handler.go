package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mingafix/mingafix/internal/middleware"
	"github.com/mingafix/mingafix/internal/observability"
	"github.com/mingafix/mingafix/internal/reports"
	"github.com/mingafix/mingafix/internal/storage"
)

// defaultNearbyRadius is the search radius in meters when the caller
// does not specify one.
const defaultNearbyRadius = 5000.0

// ReportHandler serves the report REST endpoints.
type ReportHandler struct {
	store      reports.Store
	detector   *reports.Detector
	updater    *reports.Updater
	aggregator *reports.Aggregator
	storage    *storage.Service
	metrics    *observability.Metrics
}

// NewReportHandler creates a report handler over the given store.
func NewReportHandler(store reports.Store, storageSvc *storage.Service, metrics *observability.Metrics) *ReportHandler {
	h := &ReportHandler{
		store:      store,
		detector:   reports.NewDetector(store),
		updater:    reports.NewUpdater(store),
		aggregator: reports.NewAggregator(store),
		storage:    storageSvc,
		metrics:    metrics,
	}
	if metrics != nil {
		h.detector.OnCheckFailure(metrics.RecordDedupCheckFailure)
		h.aggregator.OnComputeFailure(metrics.RecordStatsComputeFailure)
	}
	return h
}

// createRequest is the JSON body for report creation. Multipart
// submissions carry the same fields as form values plus a photo file.
// Coordinates are pointers so an absent field is distinguishable from
// a legitimate 0.
type createRequest struct {
	Category    string   `json:"category"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
}

// HandleCreate handles POST /reports.
//
// The identity middleware has already resolved the user and applied the
// rate limit, so the handler only deals with validation, duplicate
// detection and persistence.
func (h *ReportHandler) HandleCreate(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	draft, photo, err := h.parseDraft(c, userID)
	if err != nil {
		if errors.Is(err, reports.ErrMissingFields) {
			return h.draftError(c, err)
		}
		return respondError(c, CodeMissingFields, "Invalid request body")
	}

	if err := draft.Validate(); err != nil {
		return h.draftError(c, err)
	}

	if dup, existing := h.detector.IsDuplicate(c.Context(), draft.UserID, draft.Category, draft.Lat, draft.Lng); dup {
		if h.metrics != nil {
			h.metrics.RecordDuplicate(draft.Category)
		}
		return respondError(c, CodeDuplicateReport,
			"A similar report was already submitted recently",
			fiber.Map{"existing_report": existing})
	}

	// Reporter registration is best-effort; a failure must not cost the
	// citizen their submission.
	if err := h.store.EnsureUser(c.Context(), draft.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", draft.UserID).Msg("Failed to register reporter, continuing")
	}

	// Photo upload failure never blocks the report; citizens should not
	// lose a submission because the blob store is down.
	if photo != nil {
		if url := h.uploadPhoto(c, photo); url != "" {
			draft.PhotoURL = &url
		}
	}

	report, err := h.store.Create(c.Context(), draft)
	if err != nil {
		if errors.Is(err, reports.ErrMissingFields) || errors.Is(err, reports.ErrInvalidCoordinates) {
			return h.draftError(c, err)
		}
		log.Error().Err(err).Msg("Failed to create report")
		return respondError(c, CodeInternalError, "Failed to create report")
	}

	if h.metrics != nil {
		h.metrics.RecordReportCreated(report.Category)
	}

	log.Info().
		Str("report_id", report.ID).
		Str("user_id", report.UserID).
		Str("category", report.Category).
		Msg("Report created")

	return respondData(c, fiber.StatusCreated, report)
}

// HandleTestCreate handles POST /reports/test, a debug-only route that
// skips the rate limit and duplicate check. Useful for seeding data in
// development; never registered in production.
func (h *ReportHandler) HandleTestCreate(c *fiber.Ctx) error {
	userID := middleware.ResolveUserID(c)
	if userID == "" {
		userID = "test-user"
	}

	draft, _, err := h.parseDraft(c, userID)
	if err != nil {
		if errors.Is(err, reports.ErrMissingFields) {
			return h.draftError(c, err)
		}
		return respondError(c, CodeMissingFields, "Invalid request body")
	}

	if err := draft.Validate(); err != nil {
		return h.draftError(c, err)
	}

	if err := h.store.EnsureUser(c.Context(), draft.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", draft.UserID).Msg("Failed to register reporter, continuing")
	}

	report, err := h.store.Create(c.Context(), draft)
	if err != nil {
		if errors.Is(err, reports.ErrMissingFields) || errors.Is(err, reports.ErrInvalidCoordinates) {
			return h.draftError(c, err)
		}
		log.Error().Err(err).Msg("Failed to create report")
		return respondError(c, CodeInternalError, "Failed to create report")
	}

	return respondData(c, fiber.StatusCreated, report)
}

// parseDraft reads the draft from a JSON or multipart body. The photo
// file header is returned separately, nil when absent.
func (h *ReportHandler) parseDraft(c *fiber.Ctx, userID string) (reports.Draft, *multipart.FileHeader, error) {
	draft := reports.Draft{UserID: userID}

	contentType := string(c.Request().Header.ContentType())
	if strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		draft.Category = c.FormValue("category")
		draft.Description = c.FormValue("description")
		draft.Priority = c.FormValue("priority")

		latField := c.FormValue("lat")
		lngField := c.FormValue("lng")
		if latField == "" || lngField == "" {
			return draft, nil, reports.ErrMissingFields
		}
		lat, err := strconv.ParseFloat(latField, 64)
		if err != nil {
			return draft, nil, fmt.Errorf("invalid lat: %w", err)
		}
		lng, err := strconv.ParseFloat(lngField, 64)
		if err != nil {
			return draft, nil, fmt.Errorf("invalid lng: %w", err)
		}
		draft.Lat = lat
		draft.Lng = lng

		photo, err := c.FormFile("photo")
		if err != nil {
			photo = nil // no photo attached
		}
		return draft, photo, nil
	}

	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return draft, nil, err
	}
	if req.Lat == nil || req.Lng == nil {
		return draft, nil, reports.ErrMissingFields
	}
	draft.Category = req.Category
	draft.Lat = *req.Lat
	draft.Lng = *req.Lng
	draft.Description = req.Description
	draft.Priority = req.Priority
	return draft, nil, nil
}

// uploadPhoto stores the attachment under a fresh UUID key and returns
// its public URL, or "" when the upload fails.
func (h *ReportHandler) uploadPhoto(c *fiber.Ctx, photo *multipart.FileHeader) string {
	if h.storage == nil {
		return ""
	}

	if err := h.storage.ValidateUploadSize(photo.Size); err != nil {
		log.Warn().Err(err).Str("filename", photo.Filename).Msg("Photo rejected, continuing without it")
		return ""
	}

	file, err := photo.Open()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open photo upload, continuing without it")
		return ""
	}
	defer file.Close()

	key := uuid.New().String() + strings.ToLower(filepath.Ext(photo.Filename))
	contentType := photo.Header.Get("Content-Type")
	bucket := h.storage.Bucket()

	ctx, span := observability.StartStorageSpan(c.Context(), "upload", bucket, key)
	start := time.Now()
	_, err = h.storage.Provider.Upload(ctx, bucket, key, file, photo.Size,
		&storage.UploadOptions{ContentType: contentType})
	span.End()
	if h.metrics != nil {
		h.metrics.RecordStorageOperation("upload", bucket, time.Since(start), err)
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Photo upload failed, continuing without it")
		return ""
	}

	return h.storage.Provider.PublicURL(bucket, key)
}

// draftError maps a validation error to its envelope.
func (h *ReportHandler) draftError(c *fiber.Ctx, err error) error {
	if errors.Is(err, reports.ErrInvalidCoordinates) {
		return respondError(c, CodeInvalidCoordinates, "Coordinates are out of range")
	}
	return respondError(c, CodeMissingFields, "Category, coordinates and user identification are required")
}

// HandleList handles GET /reports.
func (h *ReportHandler) HandleList(c *fiber.Ctx) error {
	filters := reports.Filters{
		Category: c.Query("category"),
		Status:   reports.Status(c.Query("status")),
		UserID:   c.Query("user_id"),
	}

	if filters.Status != "" && !filters.Status.Valid() {
		return respondError(c, CodeInvalidState,
			fmt.Sprintf("Unknown status %q", filters.Status))
	}

	limit := c.QueryInt("limit", reports.DefaultListLimit)
	if limit <= 0 || limit > reports.DefaultListLimit {
		limit = reports.DefaultListLimit
	}

	list, err := h.store.List(c.Context(), filters, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list reports")
		return respondError(c, CodeInternalError, "Failed to list reports")
	}

	return respondData(c, fiber.StatusOK, fiber.Map{
		"reports": list,
		"count":   len(list),
	})
}

// HandleGet handles GET /reports/:id.
func (h *ReportHandler) HandleGet(c *fiber.Ctx) error {
	report, err := h.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, reports.ErrNotFound) {
			return respondError(c, CodeNotFound, "Report not found")
		}
		log.Error().Err(err).Str("report_id", c.Params("id")).Msg("Failed to load report")
		return respondError(c, CodeInternalError, "Failed to load report")
	}
	return respondData(c, fiber.StatusOK, report)
}

// HandleNearby handles GET /reports/nearby.
func (h *ReportHandler) HandleNearby(c *fiber.Ctx) error {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return respondError(c, CodeMissingFields, "lat and lng query parameters are required")
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		return respondError(c, CodeMissingFields, "lat and lng query parameters are required")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return respondError(c, CodeInvalidCoordinates, "Coordinates are out of range")
	}

	radius := defaultNearbyRadius
	if v := c.Query("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			return respondError(c, CodeMissingFields, "radius must be a positive number of meters")
		}
	}

	limit := c.QueryInt("limit", reports.DefaultListLimit)
	if limit <= 0 || limit > reports.DefaultListLimit {
		limit = reports.DefaultListLimit
	}

	nearby, err := h.store.Nearby(c.Context(), lat, lng, radius, limit)
	if err != nil {
		log.Error().Err(err).Msg("Nearby search failed")
		return respondError(c, CodeInternalError, "Nearby search failed")
	}

	return respondData(c, fiber.StatusOK, fiber.Map{
		"reports": nearby,
		"count":   len(nearby),
	})
}

// statusRequest is the JSON body for status updates.
type statusRequest struct {
	Status    string `json:"status"`
	UpdatedBy string `json:"updated_by"`
}

// HandleUpdateStatus handles PATCH /reports/:id/status.
func (h *ReportHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, CodeInvalidState, "Invalid request body")
	}

	actor := req.UpdatedBy
	if actor == "" {
		actor = c.Get("X-User-ID")
	}

	report, err := h.updater.UpdateStatus(c.Context(), c.Params("id"), reports.Status(req.Status), actor)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrInvalidStatus):
			return respondError(c, CodeInvalidState,
				fmt.Sprintf("Unknown status %q", req.Status))
		case errors.Is(err, reports.ErrNotFound):
			return respondError(c, CodeNotFound, "Report not found")
		case errors.Is(err, reports.ErrVersionConflict):
			if h.metrics != nil {
				h.metrics.RecordStatusConflict()
			}
			log.Warn().Err(err).Str("report_id", c.Params("id")).Msg("Status update lost every retry")
			return respondError(c, CodeInternalError, "Report is being updated concurrently, try again")
		default:
			log.Error().Err(err).Str("report_id", c.Params("id")).Msg("Status update failed")
			return respondError(c, CodeInternalError, "Status update failed")
		}
	}

	if h.metrics != nil {
		h.metrics.RecordStatusUpdate(string(report.Status))
	}

	log.Info().
		Str("report_id", report.ID).
		Str("status", string(report.Status)).
		Int("version", report.Version).
		Str("updated_by", actor).
		Msg("Report status updated")

	return respondData(c, fiber.StatusOK, report)
}

// HandleStatistics handles GET /statistics.
func (h *ReportHandler) HandleStatistics(c *fiber.Ctx) error {
	stats := h.aggregator.Compute(c.Context())
	return respondData(c, fiber.StatusOK, stats)
}

// HandleMyReports handles GET /reports/mine.
func (h *ReportHandler) HandleMyReports(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return respondError(c, CodeUserIDRequired, "User identification is required")
	}

	list, err := h.store.ListByUser(c.Context(), userID, reports.DefaultUserListLimit)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list user reports")
		return respondError(c, CodeInternalError, "Failed to list reports")
	}

	return respondData(c, fiber.StatusOK, fiber.Map{
		"reports": list,
		"count":   len(list),
	})
}

// HandleDelete handles DELETE /reports/:id. Only mounted in debug mode.
func (h *ReportHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.store.Delete(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, reports.ErrNotFound) {
			return respondError(c, CodeNotFound, "Report not found")
		}
		log.Error().Err(err).Str("report_id", c.Params("id")).Msg("Failed to delete report")
		return respondError(c, CodeInternalError, "Failed to delete report")
	}
	return respondData(c, fiber.StatusOK, fiber.Map{"deleted": c.Params("id")})
}
