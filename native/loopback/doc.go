// Package loopback implements native.Service in Go, in process.
//
// It backs tests, examples and the bridgectl default backend. Functions are
// registered from modules, whose exported methods become "module.method"
// names, or one at a time:
//
//	svc := loopback.New()
//	svc.Registry().RegisterModule(&Net{})   // net.query, net.subscribe, ...
//	svc.Registry().RegisterFunc("math.add", func(_ *loopback.Context, p AddParams) (int, error) {
//		return p.A + p.B, nil
//	})
//
// Every request runs on its own goroutine, so completions arrive on
// arbitrary goroutines like they do from a real native library. Unknown
// contexts and functions finish with an error payload of the form
// {"message":"Unknown function: x","code":25}.
//
// The built-in client module provides client.version,
// client.get_api_reference, client.ping, client.echo and client.stream.
// "ping" is also registered unqualified.
package loopback
