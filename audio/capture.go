package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// MicrophoneAdapter captures a single input device via malgo, producing mono
// 48kHz blocks.
type MicrophoneAdapter struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
	state  State
	out    chan Block
	stats  Stats
}

func NewMicrophoneAdapter(ctx *malgo.AllocatedContext) *MicrophoneAdapter {
	return &MicrophoneAdapter{ctx: ctx, state: StateIdle}
}

func (a *MicrophoneAdapter) List() ([]SourceDescriptor, error) {
	devices, err := a.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	out := make([]SourceDescriptor, 0, len(devices))
	for _, d := range devices {
		out = append(out, SourceDescriptor{
			Kind:        SourceMicrophone,
			DeviceID:    deviceIDToString(d.ID),
			DisplayName: d.Name(),
		})
	}
	return out, nil
}

func (a *MicrophoneAdapter) Start(desc SourceDescriptor) (<-chan Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return nil, ErrAlreadyRunning
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = 48000
	cfg.Alsa.NoMMap = 1

	if desc.DeviceID != "" {
		id, err := stringToDeviceID(desc.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	out := make(chan Block, 256)
	onRecv := func(_, input []byte, framecount uint32) {
		samples := bytesToFloat32(input, int(framecount)*int(cfg.Capture.Channels))
		if samples == nil {
			return
		}
		block := Block{Samples: samples, SampleRate: 48000, Channels: 1, TimestampMs: time.Now().UnixMilli()}
		select {
		case out <- block:
			a.stats.BlocksProduced++
		default:
			a.stats.DroppedBlocks++
		}
	}

	dev, err := malgo.InitDevice(a.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	a.device = dev
	a.out = out
	a.state = StateRunning
	log.Println("audio: microphone capture started")
	return out, nil
}

func (a *MicrophoneAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		a.device.Uninit()
		a.device = nil
	}
	if a.out != nil {
		close(a.out)
		a.out = nil
	}
	a.state = StateStopped
	return nil
}

func (a *MicrophoneAdapter) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return ErrNotRunning
	}
	if err := a.device.Stop(); err != nil {
		return err
	}
	a.state = StatePaused
	return nil
}

func (a *MicrophoneAdapter) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return ErrNotRunning
	}
	if err := a.device.Start(); err != nil {
		return err
	}
	a.state = StateRunning
	return nil
}

func (a *MicrophoneAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *MicrophoneAdapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// SystemAdapter captures OS output audio via a loopback/monitor capture
// device through malgo. It is used on every platform, macOS included; the
// capture-helper subprocess adapter in capture_helper_darwin.go is a
// separate type that nothing selects automatically.
type SystemAdapter struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
	state  State
	out    chan Block
	stats  Stats
}

func NewSystemAdapter(ctx *malgo.AllocatedContext) *SystemAdapter {
	return &SystemAdapter{ctx: ctx, state: StateIdle}
}

func (a *SystemAdapter) List() ([]SourceDescriptor, error) {
	devices, err := a.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	out := make([]SourceDescriptor, 0)
	for _, d := range devices {
		name := d.Name()
		if strings.Contains(strings.ToLower(name), "monitor") || strings.Contains(strings.ToLower(name), "loopback") || strings.Contains(strings.ToLower(name), "blackhole") {
			out = append(out, SourceDescriptor{Kind: SourceSystem, DeviceID: deviceIDToString(d.ID), DisplayName: name})
		}
	}
	return out, nil
}

func (a *SystemAdapter) Start(desc SourceDescriptor) (<-chan Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return nil, ErrAlreadyRunning
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 2
	cfg.SampleRate = 48000
	cfg.Alsa.NoMMap = 1

	if desc.DeviceID != "" {
		id, err := stringToDeviceID(desc.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	out := make(chan Block, 256)
	channels := int(cfg.Capture.Channels)
	onRecv := func(_, input []byte, framecount uint32) {
		samples := bytesToFloat32(input, int(framecount)*channels)
		if samples == nil {
			return
		}
		block := Block{Samples: samples, SampleRate: 48000, Channels: channels, TimestampMs: time.Now().UnixMilli()}
		select {
		case out <- block:
			a.stats.BlocksProduced++
		default:
			a.stats.DroppedBlocks++
		}
	}

	dev, err := malgo.InitDevice(a.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	a.device = dev
	a.out = out
	a.state = StateRunning
	log.Println("audio: system capture started")
	return out, nil
}

func (a *SystemAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		a.device.Uninit()
		a.device = nil
	}
	if a.out != nil {
		close(a.out)
		a.out = nil
	}
	a.state = StateStopped
	return nil
}

func (a *SystemAdapter) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return ErrNotRunning
	}
	if err := a.device.Stop(); err != nil {
		return err
	}
	a.state = StatePaused
	return nil
}

func (a *SystemAdapter) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return ErrNotRunning
	}
	if err := a.device.Start(); err != nil {
		return err
	}
	a.state = StateRunning
	return nil
}

func (a *SystemAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *SystemAdapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// bytesToFloat32 reinterprets a little-endian PCM32F capture buffer as
// samples, one binary.LittleEndian.Uint32 read per sample.
func bytesToFloat32(input []byte, sampleCount int) []float32 {
	if len(input) != sampleCount*4 {
		return nil
	}
	samples := make([]float32, sampleCount)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}
	return samples
}

const deviceIDLen = 32

// deviceIDToString renders a malgo.DeviceID's fixed-size byte array as a
// string, stopping at the first NUL the way the underlying C struct does.
func deviceIDToString(id malgo.DeviceID) string {
	raw := id[:deviceIDLen]
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return string(raw)
}

func stringToDeviceID(s string) (*malgo.DeviceID, error) {
	if len(s) > deviceIDLen {
		return nil, fmt.Errorf("audio: device id %q exceeds %d bytes", s, deviceIDLen)
	}
	var id malgo.DeviceID
	copy(id[:], s)
	return &id, nil
}
