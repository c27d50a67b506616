package mqtt

import "errors"

// ErrPublish is returned when a report could not be delivered after retries.
var ErrPublish = errors.New("mqtt publish failed")
