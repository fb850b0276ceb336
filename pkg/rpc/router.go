package rpc

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/hatn-go/hatn/pkg/herr"
)

// RouterMode controls how ServiceClient picks among an endpoint list
// (spec.md §4.6, "router mode").
type RouterMode int

const (
	// RouterNone always dials endpoints in the order given.
	RouterNone RouterMode = iota
	// RouterRandom shuffles the endpoint list on every Resolve call.
	RouterRandom
	// RouterAppendFallbackPorts expands each host into one endpoint per
	// fallback port, preserving host order.
	RouterAppendFallbackPorts
	// RouterRandomAppendFallbackPorts combines both behaviors.
	RouterRandomAppendFallbackPorts
)

// Router resolves a configured list of endpoint descriptors into an
// ordered, possibly expanded and shuffled, list of dial targets.
type Router struct {
	mu        sync.Mutex
	mode      RouterMode
	fallback  []int
	endpoints []string
}

// NewRouter builds a Router for the given hosts. fallbackPorts is only
// consulted when mode includes RouterAppendFallbackPorts.
func NewRouter(mode RouterMode, hosts []string, fallbackPorts []int) *Router {
	return &Router{mode: mode, fallback: fallbackPorts, endpoints: hosts}
}

// Resolve returns the dial order for the current call. A fresh random
// shuffle is computed on every call when the mode is randomized, so that
// repeated calls spread load rather than pinning to one ordering.
func (r *Router) Resolve() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return nil, herr.New(herr.Api, herr.ErrInvalidArg, "router has no endpoints configured")
	}

	out := make([]string, 0, len(r.endpoints)*len(r.fallback))
	switch r.mode {
	case RouterAppendFallbackPorts, RouterRandomAppendFallbackPorts:
		for _, host := range r.endpoints {
			for _, port := range r.fallback {
				out = append(out, withPort(host, port))
			}
		}
	default:
		out = append(out, r.endpoints...)
	}

	if r.mode == RouterRandom || r.mode == RouterRandomAppendFallbackPorts {
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out, nil
}

func withPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
