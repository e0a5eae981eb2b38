package series

import "errors"

var (
	ErrNotAPlayer     = errors.New("user does not play in this series")
	ErrSeriesFinished = errors.New("series is finished")
	ErrNotSeriesGame  = errors.New("match does not belong to the series")
)
