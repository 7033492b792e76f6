package raster

import "github.com/rotisserie/eris"

// Fatal pipeline conditions. Callers match these with eris.Is; the wrap at
// each raise site carries the stage name and the parameters in effect.
var (
	// ErrMissingCalibration is raised when a retained thermal scene lacks
	// one of its named calibration coefficients. Substituting a default
	// would silently skew the composite, so the run fails instead.
	ErrMissingCalibration = eris.New("missing calibration coefficient")

	// ErrZeroMean is raised when the region-wide mean is zero or invalid;
	// the deviation index would divide by it.
	ErrZeroMean = eris.New("region mean is zero or invalid")

	// ErrPixelBudgetExceeded is raised when an operation's estimated pixel
	// count exceeds the configured ceiling.
	ErrPixelBudgetExceeded = eris.New("pixel budget exceeded")
)
