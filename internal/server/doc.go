// Package server exposes uploads, port discovery, probing and drip-feed
// sessions over HTTP. Session events are streamed as newline-delimited
// JSON; a session keeps running when its stream's client goes away.
package server
