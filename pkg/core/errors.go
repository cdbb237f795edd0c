package core

import "errors"

var (
	// ErrCaptureUnavailable means the platform could not provide a frame.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrDetectionMiss means no marker was found in the frame.
	ErrDetectionMiss = errors.New("marker not detected")
	// ErrOutlierRejected means an observation implied an implausible speed.
	ErrOutlierRejected = errors.New("observation rejected as outlier")
	// ErrCalibrationMissing means the selected map has no usable calibration.
	ErrCalibrationMissing = errors.New("calibration missing")
)
