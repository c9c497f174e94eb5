// Package server hosts the Fiber HTTP service, the request middleware chain and
// the domain resolver that maps an incoming Host onto a site key before the
// gateway handler runs. Keep exports narrow: the gateway package depends on
// SiteRoute and RequestID, main wires the concrete handler in.
package server
