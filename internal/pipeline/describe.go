package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/streambridge/internal/engine/elements"
)

// Stage names used by every description
const (
	StageSource    = "audio-source"
	StageConverter = "converter"
	StageResampler = "resampler"
	StageEncoder   = "encoder"
	StageMuxer     = "muxer"
	StagePayloader = "payloader"
	StageFile      = "file-output"
	StageNetwork   = "network-output"
	StageNull      = "null-output"
)

const opusRate = 48000

// Property is one element property assignment
type Property struct {
	Key   string
	Value any
}

// Stage is one element of a description
type Stage struct {
	Factory    string
	Name       string
	Properties []Property
}

// Description is the ordered stage chain for one session, source first
type Description struct {
	Name        string
	Destination Destination
	Stages      []Stage
}

// String renders the chain in launch-line form
func (d Description) String() string {
	parts := make([]string, 0, len(d.Stages))
	for _, s := range d.Stages {
		var b strings.Builder
		b.WriteString(s.Factory)
		fmt.Fprintf(&b, " name=%s", s.Name)
		for _, p := range s.Properties {
			fmt.Fprintf(&b, " %s=%v", p.Key, p.Value)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " ! ")
}

// Describe returns the stage chain that carries cfg's audio to its
// destination. It is the only place that branches on the destination kind.
func Describe(cfg Configuration) (Description, error) {
	raw := ResolveDestination(cfg.Destination, cfg.FileNameTemplate, cfg.SessionID, time.Now())
	dest, err := ParseDestination(raw)
	if err != nil {
		return Description{}, err
	}

	desc := Description{
		Name:        "session",
		Destination: dest,
		Stages:      []Stage{sourceStage(cfg)},
	}
	if cfg.SessionID != "" {
		desc.Name = "session-" + cfg.SessionID
	}

	switch dest.Kind {
	case KindOggFile:
		desc.Stages = append(desc.Stages, opusStages(cfg)...)
		desc.Stages = append(desc.Stages,
			Stage{Factory: elements.FactoryOggMux, Name: StageMuxer},
			fileStage(dest.Path))
	case KindOggTCP:
		desc.Stages = append(desc.Stages, opusStages(cfg)...)
		desc.Stages = append(desc.Stages,
			Stage{Factory: elements.FactoryOggMux, Name: StageMuxer},
			networkStage(elements.FactoryTCPClientSink, dest))
	case KindRTP:
		desc.Stages = append(desc.Stages, opusStages(cfg)...)
		desc.Stages = append(desc.Stages,
			Stage{Factory: elements.FactoryRTPOpusPay, Name: StagePayloader},
			networkStage(elements.FactoryUDPSink, dest))
	case KindWAVFile:
		desc.Stages = append(desc.Stages,
			Stage{Factory: elements.FactoryAudioConvert, Name: StageConverter, Properties: []Property{
				{"max-channels", 0},
			}},
			Stage{Factory: elements.FactoryWAVEnc, Name: StageEncoder},
			fileStage(dest.Path))
	case KindNull:
		desc.Stages = append(desc.Stages, opusStages(cfg)...)
		desc.Stages = append(desc.Stages, Stage{Factory: elements.FactoryFakeSink, Name: StageNull, Properties: []Property{
			{"sync", false},
		}})
	}
	return desc, nil
}

func sourceStage(cfg Configuration) Stage {
	return Stage{Factory: elements.FactoryAppSrc, Name: StageSource, Properties: []Property{
		{"caps", cfg.Caps().String()},
		{"format", "time"},
		{"is-live", true},
		{"block", true},
		{"max-bytes", cfg.QueueBytes()},
		{"frame-duration", cfg.frameDuration()},
	}}
}

// opusStages converts to at most stereo 48 kHz and encodes
func opusStages(cfg Configuration) []Stage {
	return []Stage{
		{Factory: elements.FactoryAudioConvert, Name: StageConverter},
		{Factory: elements.FactoryAudioResample, Name: StageResampler, Properties: []Property{
			{"rate", opusRate},
		}},
		{Factory: elements.FactoryOpusEnc, Name: StageEncoder, Properties: []Property{
			{"bitrate", cfg.Bitrate},
			{"audio-type", "generic"},
		}},
	}
}

func fileStage(path string) Stage {
	return Stage{Factory: elements.FactoryFileSink, Name: StageFile, Properties: []Property{
		{"location", path},
		{"sync", false},
	}}
}

func networkStage(factory string, dest Destination) Stage {
	return Stage{Factory: factory, Name: StageNetwork, Properties: []Property{
		{"host", dest.Host},
		{"port", dest.Port},
		{"sync", false},
	}}
}
