package engine

import (
	"fmt"

	"github.com/tphakala/streambridge/internal/errors"
)

// ComponentEngine identifies errors raised by the engine
const ComponentEngine = "engine"

// ConstructionError wraps a failure to make, configure or link an element
func ConstructionError(err error, element, operation string) error {
	return errors.New(err).
		Component(ComponentEngine).
		Category(errors.CategoryConstruction).
		Context("element", element).
		Context("operation", operation).
		Build()
}

// UnknownPropertyError reports a property an element does not have
func UnknownPropertyError(element, key string) error {
	return ConstructionError(fmt.Errorf("element %q has no property %q", element, key), element, "set_property")
}

// InvalidPropertyError reports a property value of the wrong type or range
func InvalidPropertyError(element, key string, value any, err error) error {
	return ConstructionError(fmt.Errorf("invalid value %v for property %q of %q: %w", value, key, element, err), element, "set_property")
}

func stateError(err error, pipeline string, target State) error {
	return errors.New(err).
		Component(ComponentEngine).
		Category(errors.CategoryState).
		Context("pipeline", pipeline).
		Context("target_state", target.String()).
		Build()
}
