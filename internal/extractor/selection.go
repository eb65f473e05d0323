package extractor

import "fmt"

// SelectionPolicy decides which face to use when an image contains
// more than one.
type SelectionPolicy string

const (
	// SelectFirst picks the first face the service reports.
	SelectFirst SelectionPolicy = "first"
	// SelectLargest picks the face with the largest bounding box area.
	SelectLargest SelectionPolicy = "largest"
	// SelectReject refuses images with more than one face.
	SelectReject SelectionPolicy = "reject"
)

// ParseSelectionPolicy validates a policy string.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(s) {
	case SelectFirst, SelectLargest, SelectReject:
		return SelectionPolicy(s), nil
	case "":
		return SelectFirst, nil
	}
	return "", fmt.Errorf("unknown face selection policy %q (allowed: first, largest, reject)", s)
}

// Select applies the policy to a detected face list.
func (p SelectionPolicy) Select(faces []Face) (Face, error) {
	if len(faces) == 0 {
		return Face{}, ErrNoFace
	}
	if len(faces) == 1 {
		return faces[0], nil
	}

	switch p {
	case SelectLargest:
		best := faces[0]
		bestArea := bboxArea(best.BBox)
		for _, f := range faces[1:] {
			if a := bboxArea(f.BBox); a > bestArea {
				best = f
				bestArea = a
			}
		}
		return best, nil
	case SelectReject:
		return Face{}, fmt.Errorf("%w: found %d", ErrMultipleFaces, len(faces))
	default:
		return faces[0], nil
	}
}

func bboxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}
