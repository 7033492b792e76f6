package raster

// Background is the class value for pixels with a negative deviation index;
// they carry no intensity class but stay valid, matching the constant-zero
// base image the classification is painted onto.
const Background = 0

// ClassBreaks holds the five cut points of the intensity classification.
// Intervals are half-open [lower, upper), so a value exactly on a cut point
// belongs to the higher class.
type ClassBreaks []float64

// Class returns the intensity class for a deviation index value:
// 0 (background) below the first cut point, 1..len(breaks)-1 between
// consecutive cut points, len(breaks) at or above the last.
func (b ClassBreaks) Class(x float64) int {
	if x < b[0] {
		return Background
	}
	for i := 1; i < len(b); i++ {
		if x < b[i] {
			return i
		}
	}
	return len(b)
}

// LegendEntry maps a class value to its human-readable label and map color.
type LegendEntry struct {
	Class int    `json:"class"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend is the ordered palette accompanying a classified raster.
type Legend []LegendEntry

// DefaultLegend returns the five heat-island intensity classes with the
// palette used by the reference analysis.
func DefaultLegend() Legend {
	return Legend{
		{Class: 1, Label: "Mild", Color: "white"},
		{Class: 2, Label: "Moderate", Color: "yellow"},
		{Class: 3, Label: "Strong", Color: "orange"},
		{Class: 4, Label: "Very Strong", Color: "red"},
		{Class: 5, Label: "Extreme", Color: "darkred"},
	}
}

// Label returns the label for a class value, or "" for background/unknown.
func (l Legend) Label(class int) string {
	for _, e := range l {
		if e.Class == class {
			return e.Label
		}
	}
	return ""
}
