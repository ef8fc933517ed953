//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the manual Add/Done goroutine pattern. Element and
// server goroutines are started with wg.Go so Stop can always join them.
//
//	wg.Go(func() {
//	    s.loop(ctx)
//	})
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()").
		Suggest("$wg.Go(func() { $*_ })")
}

// TimeAfterInLoop flags time.After inside a for/select. Each iteration
// allocates a timer that lives until it fires; streaming loops use a
// time.Timer or a context deadline instead.
func TimeAfterInLoop(m dsl.Matcher) {
	m.Match(`for { select { $*_; case <-time.After($d): $*_; $*_ } }`).
		Report("time.After in a for/select loop allocates a timer per iteration; reuse a time.Timer")
}

// UnboundedContextInStop flags context.Background passed to a blocking
// Stop. Callers derive the context they were given, detached with
// context.WithoutCancel when the stop must finish after cancellation.
func UnboundedContextInStop(m dsl.Matcher) {
	m.Match(`$m.StopContext(context.Background())`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("pass the caller's context to StopContext; use context.WithoutCancel(ctx) to outlive cancellation")
}
