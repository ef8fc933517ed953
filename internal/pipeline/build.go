package pipeline

import (
	"fmt"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/engine/elements"
	"github.com/tphakala/streambridge/internal/logger"
)

// Graph is a fully constructed and linked pipeline
type Graph struct {
	pipeline *engine.Pipeline
	source   *elements.AppSrc
	desc     Description
}

// Build makes every stage of desc, applies its properties and links the
// chain. On any failure everything made so far is released and no graph
// is returned.
func Build(desc Description) (*Graph, error) {
	if len(desc.Stages) < 2 {
		return nil, constructionError(fmt.Errorf("description %q needs a source and a sink", desc.Name), "build")
	}

	made := make([]engine.Element, 0, len(desc.Stages))
	for _, stage := range desc.Stages {
		elem, err := engine.Make(stage.Factory, stage.Name)
		if err != nil {
			release(made)
			return nil, constructionError(fmt.Errorf("failed to create one or more pipeline elements: %w", err), "make")
		}
		for _, p := range stage.Properties {
			if err := elem.SetProperty(p.Key, p.Value); err != nil {
				release(append(made, elem))
				return nil, constructionError(fmt.Errorf("failed to configure %s: %w", stage.Name, err), "set_property")
			}
		}
		made = append(made, elem)
	}

	source, ok := made[0].(*elements.AppSrc)
	if !ok {
		release(made)
		return nil, constructionError(fmt.Errorf("first stage %s is %s, not %s", made[0].Name(), made[0].Factory(), elements.FactoryAppSrc), "build")
	}

	p := engine.NewPipeline(desc.Name)
	if err := p.Add(made...); err != nil {
		_ = p.Close()
		release(made)
		return nil, constructionError(err, "add")
	}
	if err := p.LinkMany(made...); err != nil {
		_ = p.Close()
		release(made)
		return nil, constructionError(fmt.Errorf("failed to link pipeline elements: %w", err), "link")
	}

	GetLogger().Debug("pipeline built",
		logger.String("pipeline", desc.Name),
		logger.String("destination_kind", desc.Destination.Kind.String()),
		logger.String("chain", desc.String()))

	return &Graph{pipeline: p, source: source, desc: desc}, nil
}

// release stops elements that never ran inside a pipeline
func release(made []engine.Element) {
	for _, e := range made {
		if err := e.Stop(); err != nil {
			GetLogger().Warn("failed to release pipeline element",
				logger.String("element", e.Name()),
				logger.Error(err))
		}
	}
}

// Source returns the ingestion element
func (g *Graph) Source() *elements.AppSrc { return g.source }

// Pipeline returns the underlying engine pipeline
func (g *Graph) Pipeline() *engine.Pipeline { return g.pipeline }

// Bus returns the pipeline bus
func (g *Graph) Bus() *engine.Bus { return g.pipeline.Bus() }

// Description returns the description the graph was built from
func (g *Graph) Description() Description { return g.desc }

// Close stops the pipeline and releases every element
func (g *Graph) Close() error {
	return g.pipeline.Close()
}
