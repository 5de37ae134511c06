//go:build !gstreamer

package sink

import "errors"

// GstSink is a stub when the gstreamer tag is not enabled.
type GstSink struct{}

// NewGstSink returns an error when the gstreamer build tag is missing.
func NewGstSink(template string, device string) (*GstSink, error) {
	return nil, errors.New("gstreamer build tag not enabled")
}

func (s *GstSink) Play(streamURL string, opts Options, done func(error)) (Handle, error) {
	return nil, errors.New("gstreamer build tag not enabled")
}
