// Package server is the HTTP side of threadtalk. It serves each local
// actor's inbox, actor document and collections, plus webfinger discovery:
//
//	POST /users/{username}/inbox       signed activity delivery
//	GET  /users/{username}             actor document with public key
//	GET  /users/{username}/followers   accepted followers
//	GET  /users/{username}/outbox      empty collection
//	GET  /.well-known/webfinger        acct: or actor url lookup
//
// Inbox requests are checked for an activity media type, verified with
// httpsig.Middleware against keys from the resolver, then handed to the
// Dispatcher with the authenticated identity. A signer whose actor
// document answers 410 Gone can still deliver a Delete; it is
// acknowledged with 202 and has no effect.
//
// Every route runs behind request id, panic recovery, body size limit and
// timeout middleware.
package server
