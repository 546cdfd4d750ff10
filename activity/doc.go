// Package activity models inbound activities and applies them to local
// relationship and content state.
//
// A Dispatcher is handed an activity only after the request carrying it
// passed signature verification, together with the identity that
// verification authenticated:
//
//	a, err := activity.Parse(body)
//	res, err := dispatcher.Dispatch(ctx, recipientID, a, httpsig.IdentityFromContext(ctx))
//
// Effects are idempotent and keyed by pair, so duplicate and out-of-order
// deliveries are safe:
//
//	Follow              add follower (remote -> local), reply Accept
//	Accept(Follow)      confirm a follow sent by a local actor
//	Reject(Follow)      drop a follow sent by a local actor
//	Undo(Follow)        remove follower
//	Like, Announce      add the sender to the content's reaction set
//	Undo(Like|Announce) remove the sender from the set
//	Create              store a remote copy of the object
//	Delete              acknowledged, no effect
//
// Any other type is rejected with ErrUnsupportedType. The Accept reply is
// delivered best effort: a failure is reported in Result.DeliveryErr and
// the stored relationship is kept.
package activity
