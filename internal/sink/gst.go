//go:build gstreamer

package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

var gstInitOnce sync.Once

// GstSink plays streams through a GStreamer pipeline built from a
// template. The template may reference {url}, {device}, {buffer_ms}
// and {channels}.
type GstSink struct {
	template string
	device   string
}

// NewGstSink creates a GStreamer-backed sink from a pipeline template.
func NewGstSink(template string, device string) (*GstSink, error) {
	if strings.TrimSpace(template) == "" {
		return nil, errors.New("pipeline template required")
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
	return &GstSink{template: template, device: device}, nil
}

func (s *GstSink) buildPipeline(streamURL string, opts Options) (*gst.Element, error) {
	pipeline := s.template
	pipeline = strings.ReplaceAll(pipeline, "{url}", streamURL)
	pipeline = strings.ReplaceAll(pipeline, "{device}", s.device)
	pipeline = strings.ReplaceAll(pipeline, "{buffer_ms}", fmt.Sprintf("%d", opts.BufferMS))
	channels := "0"
	if opts.ForceStereo {
		channels = "2"
	}
	pipeline = strings.ReplaceAll(pipeline, "{channels}", channels)
	return gst.ParseLaunch(pipeline)
}

// Play launches the pipeline and watches its bus until end-of-stream
// or error.
func (s *GstSink) Play(streamURL string, opts Options, done func(error)) (Handle, error) {
	element, err := s.buildPipeline(streamURL, opts)
	if err != nil {
		return nil, err
	}
	if err := element.SetState(gst.StatePlaying); err != nil {
		_ = element.SetState(gst.StateNull)
		return nil, err
	}
	h := &gstHandle{element: element, stopped: make(chan struct{})}
	go h.watch(done)
	return h, nil
}

type gstHandle struct {
	element *gst.Element
	once    sync.Once
	stopped chan struct{}
}

func (h *gstHandle) Stop() {
	h.once.Do(func() {
		_ = h.element.SetState(gst.StateNull)
		close(h.stopped)
	})
}

func (h *gstHandle) watch(done func(error)) {
	bus := h.element.GetBus()
	for {
		select {
		case <-h.stopped:
			done(nil)
			return
		default:
		}
		msg := bus.TimedPopFiltered(gst.ClockTime(100*time.Millisecond), gst.MessageEOS|gst.MessageError)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			h.Stop()
			done(nil)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			h.Stop()
			done(fmt.Errorf("gstreamer pipeline: %w", gerr))
			return
		}
	}
}
