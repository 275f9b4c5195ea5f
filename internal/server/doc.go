// Package server hosts the Fiber HTTP service: the request middleware chain,
// the forward-proxy catch-all that runs every absolute-form request through
// the interception gate, and the /-/ control plane (messages, metrics).
// Diagnostics routes live in the routes subpackage and are registered by the
// binary after NewApp, so keep exports narrow and accept explicit dependencies.
package server
