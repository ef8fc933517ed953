package capture

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/tphakala/streambridge/internal/errors"
)

// Device is a capture device as reported by the platform backend
type Device struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	ID      string `json:"id"`
	Default bool   `json:"default"`
}

func platformBackend() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("no audio backend for %s", runtime.GOOS).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := platformBackend()
	if err != nil {
		return nil, err
	}
	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return mctx, nil
}

func releaseContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

func captureDevices(mctx *malgo.AllocatedContext) ([]malgo.DeviceInfo, []Device, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, nil, sourceError(err, "enumerate_devices")
	}
	return infos, describeDevices(infos), nil
}

func describeDevices(infos []malgo.DeviceInfo) []Device {
	devices := make([]Device, 0, len(infos))
	for i := range infos {
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		devices = append(devices, Device{
			Index:   i,
			Name:    infos[i].Name(),
			ID:      strings.TrimRight(id, "\x00"),
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// ListDevices enumerates the capture devices of the platform backend,
// skipping the ALSA discard device
func ListDevices() ([]Device, error) {
	mctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer releaseContext(mctx)

	_, all, err := captureDevices(mctx)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(all))
	for _, d := range all {
		if strings.Contains(d.Name, "Discard all samples") {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// SelectDevice picks a device by name or decoded ID. An empty name,
// "default" or "sysdefault" selects the system default, else the first
// device. Exact name matches win over ID matches, which win over
// substring matches.
func SelectDevice(devices []Device, name string) (Device, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}

	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.ID == name {
			return d, nil
		}
	}
	if name != "" {
		for _, d := range devices {
			if strings.Contains(d.Name, name) {
				return d, nil
			}
		}
	}

	return Device{}, errors.New(errors.NewStd("no matching audio device found")).
		Component(componentCapture).
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
