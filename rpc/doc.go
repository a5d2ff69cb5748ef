// Package rpc is the runtime of generated clients.
//
// # Transport
//
// A Transport collects the calls issued within a short window and sends them
// as one batch through a Sender. Every call is a Transaction:
//
//	pending -> queued -> sent -> completed
//	                  \-> cancelled
//
// Responses are matched to transactions by id. A response without an id, or
// with an id the batch did not carry, fails the remaining calls of that batch
// and no other. Cancelling a queued call removes it from its batch; a sent
// call that is cancelled has its response dropped.
//
//	t := rpc.NewTransport(sender, rpc.WithInterceptor(rpc.LogCalls(logger)))
//	defer t.Close()
//	users, err := api.UserList(ctx, t, api.UserListParams{})
//
// # Decoding
//
// Generated code decodes results with the Parse* helpers and the generic
// constructors NewList, NewMapping, NewTuple, NewOptional, NewEntity and
// Dispatch. Decoding failures are *DecodeError values carrying the path of
// the offending value.
//
// # Registration
//
// Generated modules describe their clients as Provider values and register
// them with a Registrar, usually a Container.
package rpc
