package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

// runToMap flattens a run for the GraphQL resolvers.
func runToMap(r *domain.DetectionRun) map[string]interface{} {
	m := map[string]interface{}{
		"id":            r.ID,
		"kind":          string(r.Kind),
		"status":        string(r.Status),
		"prompt":        r.Prompt,
		"bounding_box":  bboxList(r.BoundingBox),
		"feature_count": r.FeatureCount,
		"tile_count":    r.TileCount,
		"error":         r.Error,
		"created_at":    r.CreatedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		m["completed_at"] = r.CompletedAt.Format(time.RFC3339)
	}
	if len(r.Result) > 0 {
		m["result"] = string(r.Result)
	}
	return m
}

func bboxList(b geospatial.BBox) []float64 {
	a := b.Array()
	return a[:]
}

// bboxArg reads a [west, south, east, north] list argument.
func bboxArg(v interface{}) (geospatial.BBox, error) {
	vals, ok := v.([]interface{})
	if !ok || len(vals) != 4 {
		return geospatial.BBox{}, &geospatial.InvalidInputError{Reason: "bbox must be [west, south, east, north]"}
	}
	var f [4]float64
	for i, x := range vals {
		n, ok := x.(float64)
		if !ok {
			return geospatial.BBox{}, &geospatial.InvalidInputError{Reason: "bbox values must be numbers"}
		}
		f[i] = n
	}
	return geospatial.BBox{West: f[0], South: f[1], East: f[2], North: f[3]}, nil
}

// buildSchema creates the GraphQL schema wired to the detection service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lon": &graphql.Field{Type: graphql.Float},
			"lat": &graphql.Field{Type: graphql.Float},
		},
	})

	runType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DetectionRun",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"kind":          &graphql.Field{Type: graphql.String},
			"status":        &graphql.Field{Type: graphql.String},
			"prompt":        &graphql.Field{Type: graphql.String},
			"bounding_box":  &graphql.Field{Type: graphql.NewList(graphql.Float)},
			"feature_count": &graphql.Field{Type: graphql.Int},
			"tile_count":    &graphql.Field{Type: graphql.Int},
			"error":         &graphql.Field{Type: graphql.String},
			"created_at":    &graphql.Field{Type: graphql.String},
			"completed_at":  &graphql.Field{Type: graphql.String},
			"result":        &graphql.Field{Type: graphql.String, Description: "GeoJSON FeatureCollection"},
		},
	})

	tilesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileSummary",
		Fields: graphql.Fields{
			"zoom":     &graphql.Field{Type: graphql.Int},
			"count":    &graphql.Field{Type: graphql.Int},
			"quadkeys": &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"detection": &graphql.Field{
				Type:        runType,
				Description: "Get a detection run by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					run, err := deps.Detections.Get(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return runToMap(run), nil
				},
			},
			"detections": &graphql.Field{
				Type:        graphql.NewList(runType),
				Description: "List detection runs, newest first",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					runs, _, err := deps.Detections.List(p.Context, p.Args["limit"].(int), p.Args["offset"].(int))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(runs))
					for i := range runs {
						out = append(out, runToMap(&runs[i]))
					}
					return out, nil
				},
			},
			"tiles": &graphql.Field{
				Type:        tilesType,
				Description: "Imagery tiles needed for a bounding box",
				Args: graphql.FieldConfigArgument{
					"bbox": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.Float))},
					"zoom": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					b, err := bboxArg(p.Args["bbox"])
					if err != nil {
						return nil, err
					}
					s, err := deps.Detections.Tiles(b, p.Args["zoom"].(int))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"zoom": s.Zoom, "count": s.Count, "quadkeys": s.Quadkeys}, nil
				},
			},
			"project": &graphql.Field{
				Type:        geoPointType,
				Description: "Convert Web Mercator meters to longitude/latitude",
				Args: graphql.FieldConfigArgument{
					"x": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"y": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lon, lat := geospatial.MercatorToGeographic(p.Args["x"].(float64), p.Args["y"].(float64))
					return map[string]interface{}{"lon": lon, "lat": lat}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
