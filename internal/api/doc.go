// Package api exposes a pubsub client over HTTP and WebSocket.
//
// Routes (all under /api/v1):
//
//	GET    /health         broker and component health          (no auth)
//	GET    /status         client state and identity            (read)
//	GET    /faults         fault journal page                   (read)
//	GET    /faults/{id}    one journal entry                    (read)
//	GET    /stream         WebSocket of messages and faults     (read)
//	POST   /publish        publish one message                  (write)
//	POST   /subscriptions  subscribe to topic filters           (write)
//	DELETE /subscriptions  unsubscribe                          (write)
//
// When a JWT secret is configured every route except /health needs an
// "Authorization: Bearer" token minted by the auth package. Browsers that
// cannot set headers on a WebSocket may pass it as ?access_token=.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
