// Package contacts defines the shared touch-contact types and the
// Processor interface implemented by both the advanced and basic
// touch processors. The implementation is chosen once at
// construction; nothing crosses an interface boundary per pixel.
package contacts

import "iptsd/internal/numeric"

// TouchPoint is a single fitted contact produced by a processor for one
// frame, consumed by the touch manager.
type TouchPoint struct {
	Mean       numeric.Vec2[float32]
	Cov        numeric.Mat2s[float32]
	Scale      float32
	Confidence float32
	Palm       bool
}

// Config carries the processor-independent tuning knobs read from the
// device configuration file that both the basic and advanced processors
// need.
type Config struct {
	Size          numeric.Index2
	BasicPressure float32
}

// Processor is implemented by both contacts/basic and contacts/advanced.
// Heatmap returns the backing image, which the caller resizes and fills
// each frame; Process runs the full
// per-frame pipeline and returns the contacts found, always a non-nil
// (possibly empty) slice.
type Processor interface {
	Heatmap() *numeric.Image[float32]
	Process() []TouchPoint
}
