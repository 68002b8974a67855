package api

import (
	"fmt"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/mingafix/mingafix/internal/reports"
)

// buildSchema constructs the static GraphQL schema over the report domain.
// Unlike a generated schema there is nothing to invalidate: the type set is
// fixed at startup.
func (h *GraphQLHandler) buildSchema() (graphql.Schema, error) {
	reportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Report",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).ID, nil
				},
			},
			"userId": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).UserID, nil
				},
			},
			"category": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).Category, nil
				},
			},
			"lat": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).Lat, nil
				},
			},
			"lng": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).Lng, nil
				},
			},
			"description": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).Description, nil
				},
			},
			"photoUrl": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).PhotoURL, nil
				},
			},
			"status": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(sourceReport(p.Source).Status), nil
				},
			},
			"priority": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).Priority, nil
				},
			},
			"version": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).Version, nil
				},
			},
			"votesUp": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).VotesUp, nil
				},
			},
			"votesDown": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).VotesDown, nil
				},
			},
			"createdAt": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).CreatedAt.Format(time.RFC3339), nil
				},
			},
			"updatedAt": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if t := sourceReport(p.Source).UpdatedAt; t != nil {
						return t.Format(time.RFC3339), nil
					}
					return nil, nil
				},
			},
			"updatedBy": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceReport(p.Source).UpdatedBy, nil
				},
			},
			"location": &graphql.Field{
				Type:        graphql.String,
				Description: "The report location as a GeoJSON point",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw, err := sourceReport(p.Source).LocationGeoJSON()
					if err != nil {
						return nil, err
					}
					return string(raw), nil
				},
			},
		},
	})

	nearbyReportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearbyReport",
		Fields: graphql.Fields{
			"report": &graphql.Field{
				Type: graphql.NewNonNull(reportType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					nr := p.Source.(reports.NearbyReport)
					return nr.Report, nil
				},
			},
			"distanceMeters": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reports.NearbyReport).DistanceMeters, nil
				},
			},
		},
	})

	categoryCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CategoryCount",
		Fields: graphql.Fields{
			"category": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reports.CategoryCount).Category, nil
				},
			},
			"count": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reports.CategoryCount).Count, nil
				},
			},
		},
	})

	userCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "UserCount",
		Fields: graphql.Fields{
			"userId": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reports.UserCount).UserID, nil
				},
			},
			"count": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reports.UserCount).Count, nil
				},
			},
		},
	})

	statisticsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Statistics",
		Fields: graphql.Fields{
			"total": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).Total, nil
				},
			},
			"pending": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).Pending, nil
				},
			},
			"inProgress": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).InProgress, nil
				},
			},
			"resolved": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).Resolved, nil
				},
			},
			"rejected": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).Rejected, nil
				},
			},
			"byCategory": &graphql.Field{
				Type: graphql.NewList(categoryCountType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).ByCategory, nil
				},
			},
			"topUsers": &graphql.Field{
				Type: graphql.NewList(userCountType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*reports.Stats).TopUsers, nil
				},
			},
		},
	})

	reportPayloadType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ReportPayload",
		Fields: graphql.Fields{
			"success": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reportPayload).Success, nil
				},
			},
			"code": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reportPayload).Code, nil
				},
			},
			"message": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(reportPayload).Message, nil
				},
			},
			"report": &graphql.Field{
				Type: reportType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := p.Source.(reportPayload).Report; r != nil {
						return *r, nil
					}
					return nil, nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"reports": &graphql.Field{
				Type: graphql.NewList(reportType),
				Args: graphql.FieldConfigArgument{
					"category": &graphql.ArgumentConfig{Type: graphql.String},
					"status":   &graphql.ArgumentConfig{Type: graphql.String},
					"userId":   &graphql.ArgumentConfig{Type: graphql.String},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: h.resolveReports,
			},
			"report": &graphql.Field{
				Type: reportType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: h.resolveReport,
			},
			"myReports": &graphql.Field{
				Type: graphql.NewList(reportType),
				Args: graphql.FieldConfigArgument{
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: h.resolveMyReports,
			},
			"nearbyReports": &graphql.Field{
				Type: graphql.NewList(nearbyReportType),
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: h.resolveNearbyReports,
			},
			"statistics": &graphql.Field{
				Type:    statisticsType,
				Resolve: h.resolveStatistics,
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createReport": &graphql.Field{
				Type: reportPayloadType,
				Args: graphql.FieldConfigArgument{
					"userId":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"category":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lat":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"description": &graphql.ArgumentConfig{Type: graphql.String},
					"priority":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: h.resolveCreateReport,
			},
			"updateReportStatus": &graphql.Field{
				Type: reportPayloadType,
				Args: graphql.FieldConfigArgument{
					"id":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"status":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"updatedBy": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: h.resolveUpdateStatus,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// sourceReport normalizes a resolver source: list resolvers yield value
// elements, single-report resolvers yield pointers.
func sourceReport(src interface{}) *reports.Report {
	switch r := src.(type) {
	case *reports.Report:
		return r
	case reports.Report:
		return &r
	default:
		panic(fmt.Sprintf("unexpected report source %T", src))
	}
}
