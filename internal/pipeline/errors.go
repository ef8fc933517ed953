package pipeline

import "github.com/tphakala/streambridge/internal/errors"

// ComponentPipeline identifies errors raised while describing or building graphs
const ComponentPipeline = "pipeline"

// ErrUnsupportedDestination matches any destination that no graph can serve
var ErrUnsupportedDestination = errors.NewStd("unsupported destination kind")

func constructionError(err error, operation string) error {
	return errors.New(err).
		Component(ComponentPipeline).
		Category(errors.CategoryConstruction).
		Context("operation", operation).
		Build()
}
