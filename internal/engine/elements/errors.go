package elements

// ComponentElements identifies errors raised by pipeline elements
const ComponentElements = "elements"
