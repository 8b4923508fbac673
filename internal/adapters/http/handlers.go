package http

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

const contentTypeGeoJSON = "application/geo+json"

// bboxRequest is the body of POST /v1/bbox.
type bboxRequest struct {
	Extent json.RawMessage `json:"extent"`
	CRS    string          `json:"crs"`
}

// promptPointRequest is the body of the prompt point routes. The set is
// round-tripped by the client; the server keeps no prompt state.
type promptPointRequest struct {
	Set   geospatial.PointPromptSet `json:"set"`
	Point *orb.Point                `json:"point"`
	Kind  geospatial.PointKind      `json:"kind"`
}

// BBoxHandler converts a map extent into a geographic bounding box.
func BBoxHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req bboxRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Extent) == 0 {
			return errBadRequest(c, "extent is required")
		}

		b, err := deps.Detections.Normalize(c.UserContext(), req.Extent, req.CRS)
		if err != nil {
			return writeServiceError(c, err)
		}
		width, height := b.Dimensions()
		return c.JSON(fiber.Map{
			"bounding_box":  b,
			"width_meters":  width,
			"height_meters": height,
		})
	}
}

// TilesHandler reports the imagery tiles a bounding box covers.
func TilesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("bbox")
		if raw == "" {
			return errBadRequest(c, "bbox query parameter is required")
		}
		b, err := geospatial.ParseBBox(raw)
		if err != nil {
			return writeServiceError(c, err)
		}

		summary, err := deps.Detections.Tiles(b, c.QueryInt("zoom", 0))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(summary)
	}
}

// DetectTextHandler runs a text-prompted detection and returns the run.
func DetectTextHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.TextDetectionRequest
		if err := c.BodyParser(&req); err != nil {
			return bodyError(c, err)
		}

		run, err := deps.Detections.DetectText(c.UserContext(), &req)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(run)
	}
}

// DetectPointsHandler runs a point-prompted detection and returns the run.
func DetectPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.PointDetectionRequest
		if err := c.BodyParser(&req); err != nil {
			return bodyError(c, err)
		}

		run, err := deps.Detections.DetectPoints(c.UserContext(), &req)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(run)
	}
}

// LegacyPredictHandler serves the old predict route: a text detection whose
// response is the bare GeoJSON result.
func LegacyPredictHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.TextDetectionRequest
		if err := c.BodyParser(&req); err != nil {
			return bodyError(c, err)
		}

		run, err := deps.Detections.DetectText(c.UserContext(), &req)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, contentTypeGeoJSON)
		return c.Send(run.Result)
	}
}

// SubmitDetectionHandler queues a detection for the worker and answers 202.
func SubmitDetectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.SubmitRequest
		if err := c.BodyParser(&req); err != nil {
			return bodyError(c, err)
		}

		run, err := deps.Detections.Submit(c.UserContext(), &req)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderLocation, "/v1/detections/"+run.ID)
		return c.Status(fiber.StatusAccepted).JSON(run)
	}
}

// ListDetectionsHandler returns runs newest first, without their bodies.
func ListDetectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		runs, total, err := deps.Detections.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		if runs == nil {
			runs = []domain.DetectionRun{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: runs, Pagination: pg})
	}
}

// GetDetectionHandler returns a single run.
func GetDetectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "detection id is required")
		}

		run, err := deps.Detections.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		if run.Status.Terminal() {
			c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
		}
		return c.JSON(run)
	}
}

// DetectionFeaturesHandler returns the features of a run inside ?bbox=.
func DetectionFeaturesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("bbox")
		if raw == "" {
			return errBadRequest(c, "bbox query parameter is required")
		}
		b, err := geospatial.ParseBBox(raw)
		if err != nil {
			return writeServiceError(c, err)
		}

		fc, err := deps.Detections.FeaturesWithin(c.UserContext(), c.Params("id"), b)
		if err != nil {
			return writeServiceError(c, err)
		}
		return sendGeoJSON(c, fc)
	}
}

// ReduceHandler applies display options to an uploaded FeatureCollection.
// Query: mode, corner, min_area, crs.
func ReduceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) == 0 {
			return errBadRequest(c, "a GeoJSON FeatureCollection body is required")
		}

		mode, err := geospatial.ParseDisplayMode(c.Query("mode"))
		if err != nil {
			return writeServiceError(c, err)
		}
		corner, err := geospatial.ParseCorner(c.Query("corner"))
		if err != nil {
			return writeServiceError(c, err)
		}
		opts := domain.DisplayOptions{Mode: mode, Corner: corner}
		if raw := c.Query("min_area"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				return errBadRequest(c, "min_area must be a non-negative number")
			}
			opts.MinArea = &v
		}

		fc, err := deps.Detections.Reduce(c.UserContext(), c.Body(), c.Query("crs"), opts)
		if err != nil {
			return writeServiceError(c, err)
		}
		return sendGeoJSON(c, fc)
	}
}

// AddPromptPointHandler appends a point to the submitted prompt set.
func AddPromptPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req promptPointRequest
		if err := c.BodyParser(&req); err != nil {
			return bodyError(c, err)
		}
		if req.Point == nil {
			return errBadRequest(c, "point is required")
		}
		if req.Kind == "" {
			req.Kind = geospatial.PointInclude
		}

		set, err := deps.Prompts.AddPoint(req.Set, *req.Point, req.Kind)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"set": set, "count": set.Len()})
	}
}

// RemovePromptPointHandler drops every prompt point near the given one.
func RemovePromptPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req promptPointRequest
		if err := c.BodyParser(&req); err != nil {
			return bodyError(c, err)
		}
		if req.Point == nil {
			return errBadRequest(c, "point is required")
		}

		set, removed := deps.Prompts.RemovePoint(req.Set, *req.Point)
		return c.JSON(fiber.Map{"set": set, "count": set.Len(), "removed": removed})
	}
}

// bodyError reports an unparsable body, keeping validation messages raised
// while decoding (a malformed bounding_box, for instance).
func bodyError(c *fiber.Ctx, err error) error {
	var inputErr *geospatial.InvalidInputError
	if errors.As(err, &inputErr) {
		return errBadRequest(c, inputErr.Error())
	}
	if errors.Is(err, fiber.ErrUnprocessableEntity) {
		return errBadRequest(c, "request body must be JSON")
	}
	return errBadRequest(c, "invalid request body: "+strings.TrimPrefix(err.Error(), "json: "))
}

func sendGeoJSON(c *fiber.Ctx, v json.Marshaler) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return errInternal(c, "encode result")
	}
	c.Set(fiber.HeaderContentType, contentTypeGeoJSON)
	return c.Send(data)
}
