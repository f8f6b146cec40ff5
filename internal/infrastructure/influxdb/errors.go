package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry export turned off
//	}
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps errors delivered to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates InfluxDB export is disabled in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
