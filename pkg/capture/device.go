// Package capture runs live segmentation on microphone input.
package capture

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// DeviceChannels is the capture channel count; the segmenter needs mono.
const DeviceChannels = 1

// Source delivers little-endian 16-bit mono PCM chunks to onData until it
// is closed. onData may be called from another goroutine.
type Source interface {
	Start(onData func(pcm []byte)) error
	Close() error
}

// Device is the default capture device.
type Device struct {
	sampleRate   int
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
}

// OpenDevice initializes the audio backend for capture at sampleRate.
func OpenDevice(sampleRate int) (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init context: %w", err)
	}
	return &Device{sampleRate: sampleRate, audioContext: ctx}, nil
}

// SampleRate returns the capture rate.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// Start begins capture in 20 ms periods.
func (d *Device) Start(onData func(pcm []byte)) error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = 20
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = DeviceChannels
	deviceConfig.SampleRate = uint32(d.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var err error
	d.device, err = malgo.InitDevice(d.audioContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			chunk := make([]byte, len(inputSamples))
			copy(chunk, inputSamples)
			onData(chunk)
		},
	})
	if err != nil {
		return fmt.Errorf("capture: init device: %w", err)
	}
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("capture: start device: %w", err)
	}
	return nil
}

// Close stops capture and releases the backend.
func (d *Device) Close() error {
	if d.device != nil {
		d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.audioContext != nil {
		err := d.audioContext.Uninit()
		d.audioContext.Free()
		d.audioContext = nil
		return err
	}
	return nil
}
