// Package vad scores audio frames for speech.
//
// A Prober maps one fixed-size frame to a probability. EnergyProber needs no
// model; MockDetector replays scripted probabilities in tests.
//
// The Silero detector runs the ONNX model through onnxruntime_go and is only
// compiled with the vad build tag:
//
//	if err := vad.InitRuntime(""); err != nil {
//	    log.Fatal(err)
//	}
//	defer vad.DestroyRuntime()
//
//	detector, err := vad.NewDetector(vad.DetectorConfig{
//	    ModelPath: "models/silero_vad.onnx",
//	})
//	prob, err := detector.Process(frame, 16000)
package vad

// Prober turns one fixed-size audio frame into a speech probability.
// Implementations carry recurrent state across calls and are not safe for
// concurrent use; callers serialize frames and Reset between streams.
type Prober interface {
	// Process runs the model on one frame and returns the speech probability
	// in [0, 1]. frame must hold exactly WindowSize(sampleRate) samples
	// normalized to [-1, 1].
	Process(frame []float32, sampleRate int) (float32, error)

	// Reset clears the recurrent state.
	// This should be called when starting a new audio stream.
	Reset() error

	// Destroy releases all resources held by the prober.
	// The prober should not be used after calling Destroy.
	Destroy() error
}
