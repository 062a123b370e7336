// Package ucp exposes a merchant checkout over HTTP for commerce that settles
// on a distributed ledger.
//
// # Checkout
//
// Use [NewCheckoutHandler] with a [CheckoutProvider], normally a
// [checkout.Machine], to serve the session routes, order lookup, and the
// /.well-known/ucp discovery document over `net/http`. Handler options such as
// [WithSignatureVerifier], [WithRequireSignedRequests] and [WithAuthenticator]
// enforce canonical JSON signatures and API keys. [WithIdempotencyStore] makes
// retried requests carrying an Idempotency-Key header replay the first
// response instead of running twice.
//
// ## How it works
//
//   - The client reads the discovery document, creates a session and builds the cart.
//   - Locking the totals fixes the amount due in the ledger's native unit.
//   - The buyer pays the merchant account on the ledger and submits the transaction id,
//     or hands the merchant a signed transfer to broadcast.
//   - Completing the session verifies the transfer on the ledger and creates exactly one order.
//
// # Webhooks
//
// [WebhookSender] posts HMAC signed order_created events. Pass
// [WebhookSender.OrderHook] to [checkout.WithOrderHook] to deliver them as
// orders are created.
package ucp
