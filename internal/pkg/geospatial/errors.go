package geospatial

// InvalidInputError reports an extent, bounding box or point prompt that is
// absent, not an object, or missing a required field.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// InvalidGeometryError reports a ring too degenerate to reduce.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "invalid geometry: " + e.Reason
}
