// Package stream maintains one live price-feed connection and multiplexes
// symbol subscriptions over it.
//
// A Manager owns the transport, a single read loop and the subscription
// registry. New subscriptions pass through an admission check, tickers are
// fanned out to each symbol's handlers under a shared deadline, and a lost
// connection is rebuilt in the background with every subscription restored.
// Delivery is at-most-once: frames sent while disconnected are lost.
package stream
