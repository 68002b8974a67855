package api

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog/log"

	"github.com/mingafix/mingafix/internal/reports"
)

// reportPayload is the mutation result envelope. Domain rejections
// (duplicates, rate limits, validation) surface here rather than as
// GraphQL errors so clients can branch on the code.
type reportPayload struct {
	Success bool
	Code    string
	Message string
	Report  *reports.Report
}

func (h *GraphQLHandler) resolveReports(p graphql.ResolveParams) (interface{}, error) {
	filters := reports.Filters{}
	if v, ok := p.Args["category"].(string); ok {
		filters.Category = v
	}
	if v, ok := p.Args["status"].(string); ok {
		filters.Status = reports.Status(v)
		if !filters.Status.Valid() {
			return nil, fmt.Errorf("unknown status %q", v)
		}
	}
	if v, ok := p.Args["userId"].(string); ok {
		filters.UserID = v
	}

	return h.store.List(p.Context, filters, argLimit(p, reports.DefaultListLimit))
}

func (h *GraphQLHandler) resolveReport(p graphql.ResolveParams) (interface{}, error) {
	report, err := h.store.Get(p.Context, p.Args["id"].(string))
	if errors.Is(err, reports.ErrNotFound) {
		return nil, nil
	}
	return report, err
}

func (h *GraphQLHandler) resolveMyReports(p graphql.ResolveParams) (interface{}, error) {
	return h.store.ListByUser(p.Context, p.Args["userId"].(string),
		argLimit(p, reports.DefaultUserListLimit))
}

func (h *GraphQLHandler) resolveNearbyReports(p graphql.ResolveParams) (interface{}, error) {
	lat := p.Args["lat"].(float64)
	lng := p.Args["lng"].(float64)
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, errors.New("coordinates are out of range")
	}

	radius := defaultNearbyRadius
	if v, ok := p.Args["radius"].(float64); ok && v > 0 {
		radius = v
	}

	return h.store.Nearby(p.Context, lat, lng, radius, argLimit(p, reports.DefaultListLimit))
}

func (h *GraphQLHandler) resolveStatistics(p graphql.ResolveParams) (interface{}, error) {
	return h.aggregator.Compute(p.Context), nil
}

func (h *GraphQLHandler) resolveCreateReport(p graphql.ResolveParams) (interface{}, error) {
	draft := reports.Draft{
		UserID:   p.Args["userId"].(string),
		Category: p.Args["category"].(string),
		Lat:      p.Args["lat"].(float64),
		Lng:      p.Args["lng"].(float64),
	}
	if v, ok := p.Args["description"].(string); ok {
		draft.Description = v
	}
	if v, ok := p.Args["priority"].(string); ok {
		draft.Priority = v
	}

	if err := draft.Validate(); err != nil {
		return validationPayload(err), nil
	}

	// The mutation enforces the same per-user budget as the REST route
	if h.limiter != nil {
		decision := h.limiter.Admit(p.Context, draft.UserID, "create_report", h.policy)
		if !decision.Allowed {
			if h.metrics != nil {
				h.metrics.RecordRateLimitRejection("create_report")
			}
			return reportPayload{
				Success: false,
				Code:    CodeRateLimitExceeded,
				Message: "Too many reports, please wait before submitting again",
			}, nil
		}
	}

	if dup, _ := h.detector.IsDuplicate(p.Context, draft.UserID, draft.Category, draft.Lat, draft.Lng); dup {
		if h.metrics != nil {
			h.metrics.RecordDuplicate(draft.Category)
		}
		return reportPayload{
			Success: false,
			Code:    CodeDuplicateReport,
			Message: "A similar report was already submitted recently",
		}, nil
	}

	// Best-effort, same as the REST route: never lose the report over it
	if err := h.store.EnsureUser(p.Context, draft.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", draft.UserID).Msg("Failed to register reporter, continuing")
	}

	report, err := h.store.Create(p.Context, draft)
	if err != nil {
		if errors.Is(err, reports.ErrMissingFields) || errors.Is(err, reports.ErrInvalidCoordinates) {
			return validationPayload(err), nil
		}
		log.Error().Err(err).Msg("Failed to create report")
		return internalPayload(), nil
	}

	if h.metrics != nil {
		h.metrics.RecordReportCreated(report.Category)
	}

	return reportPayload{Success: true, Report: report}, nil
}

func (h *GraphQLHandler) resolveUpdateStatus(p graphql.ResolveParams) (interface{}, error) {
	actor := ""
	if v, ok := p.Args["updatedBy"].(string); ok {
		actor = v
	}

	report, err := h.updater.UpdateStatus(p.Context,
		p.Args["id"].(string), reports.Status(p.Args["status"].(string)), actor)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrInvalidStatus):
			return reportPayload{
				Success: false,
				Code:    CodeInvalidState,
				Message: fmt.Sprintf("Unknown status %q", p.Args["status"]),
			}, nil
		case errors.Is(err, reports.ErrNotFound):
			return reportPayload{
				Success: false,
				Code:    CodeNotFound,
				Message: "Report not found",
			}, nil
		default:
			if errors.Is(err, reports.ErrVersionConflict) && h.metrics != nil {
				h.metrics.RecordStatusConflict()
			}
			log.Error().Err(err).Msg("Status update failed")
			return internalPayload(), nil
		}
	}

	if h.metrics != nil {
		h.metrics.RecordStatusUpdate(string(report.Status))
	}

	return reportPayload{Success: true, Report: report}, nil
}

func validationPayload(err error) reportPayload {
	code := CodeMissingFields
	message := "Category and user identification are required"
	if errors.Is(err, reports.ErrInvalidCoordinates) {
		code = CodeInvalidCoordinates
		message = "Coordinates are out of range"
	}
	return reportPayload{Success: false, Code: code, Message: message}
}

func internalPayload() reportPayload {
	return reportPayload{
		Success: false,
		Code:    CodeInternalError,
		Message: "Internal error",
	}
}

// argLimit reads a positive limit argument capped at max.
func argLimit(p graphql.ResolveParams, max int) int {
	if v, ok := p.Args["limit"].(int); ok && v > 0 && v <= max {
		return v
	}
	return max
}
