//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// EnhancedErrorBuild flags builder chains that never call Build. Without
// Build the error is neither categorized nor reported to telemetry.
func EnhancedErrorBuild(m dsl.Matcher) {
	m.Import("github.com/tphakala/streambridge/internal/errors")

	m.Match(`return errors.New($err).Component($c).Category($cat)`,
		`return errors.New($err).Component($c).Category($cat).Context($*_)`).
		Report("enhanced error built without .Build()").
		Suggest("return errors.New($err).Component($c).Category($cat).Build()")
}

// EnhancedErrorComponent flags errors built without a component, which
// leaves telemetry to guess it from the call stack
func EnhancedErrorComponent(m dsl.Matcher) {
	m.Import("github.com/tphakala/streambridge/internal/errors")

	m.Match(`errors.New($err).Category($cat).Build()`,
		`errors.Newf($*_).Category($cat).Build()`).
		Report("set .Component(...) on enhanced errors")
}

// StdlibErrorsImport flags the standard errors package outside
// internal/errors; the wrapper re-exports Is, As, Join and NewStd
func StdlibErrorsImport(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") &&
			!m.File().PkgPath.Matches(`internal/errors$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use github.com/tphakala/streambridge/internal/errors instead of the standard errors package")
}
