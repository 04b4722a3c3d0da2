package dylib

import (
	"sync"

	"github.com/wippyai/native-bridge/native"
)

// route ties a library-side request key to the caller's request.
type route struct {
	done      native.CompletionFunc
	finish    func(key uint32)
	requestID uint32
}

// routes maps the key passed to tc_request to its route. Keys are never 0
// and are not reused while registered.
var routes = struct {
	sync.RWMutex
	m    map[uint32]route
	next uint32
}{m: make(map[uint32]route)}

func registerRoute(r route) uint32 {
	routes.Lock()
	defer routes.Unlock()
	for {
		routes.next++
		if routes.next == 0 {
			continue
		}
		if _, live := routes.m[routes.next]; live {
			continue
		}
		routes.m[routes.next] = r
		return routes.next
	}
}

// lookupRoute returns the route for key; finished removes it.
func lookupRoute(key uint32, finished bool) (route, bool) {
	if finished {
		routes.Lock()
		defer routes.Unlock()
		r, ok := routes.m[key]
		delete(routes.m, key)
		return r, ok
	}
	routes.RLock()
	defer routes.RUnlock()
	r, ok := routes.m[key]
	return r, ok
}

// routeCount returns the number of requests awaiting a finished response.
func routeCount() int {
	routes.RLock()
	defer routes.RUnlock()
	return len(routes.m)
}

// deliver converts one library response into a Completion. payload is only
// valid during the call; the dispatcher copies it.
func deliver(key uint32, payload []byte, responseType uint32, finished bool) bool {
	r, ok := lookupRoute(key, finished)
	if !ok {
		return false
	}
	c := native.Completion{
		RequestID: r.requestID,
		Type:      native.ResponseType(responseType),
		Finished:  finished,
	}
	if c.Type == native.ResponseError {
		c.Error = payload
	} else {
		c.Result = payload
	}
	if finished && r.finish != nil {
		r.finish(key)
	}
	r.done(c)
	return true
}
