// Package app is the composition root of the liftlog client.
//
// Outgoing API calls pass through one transport chain, outermost first:
//
//	loading.Transport        counts in-flight requests
//	offline.CaptureTransport queues mutations that get no response
//	authn.Transport          bearer token, refresh-and-retry on 401
//	base                     net/http, optionally with a custom CA
//
// The auth endpoints and the health probe use a shorter chain without the
// authn and capture layers, and queue replays skip capture so a failed
// replay is retained rather than queued twice.
package app
