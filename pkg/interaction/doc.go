// Package interaction implements remote calls against a Grenton CLU.
//
// Every call is a Lua statement framed as req:<local ip>:<request id>:<payload>
// and answered on the same socket. The Client builds the statement, sends it
// through a Sender (normally a transport.Transport) and interprets the reply.
//
// # Usage
//
//	client := interaction.NewClient(tr, "192.168.1.20")
//
//	// Liveness probe; returns the CLU serial number
//	serial, err := client.CheckAlive(ctx)
//
//	// Read and write features
//	v, err := client.Get(ctx, "DOU1234", 0)
//	err = client.Set(ctx, "DOU1234", 0, 1)
//
//	// Invoke a method
//	_, err = client.Execute(ctx, "DOU1234", 0)
//
//	// Evaluate an arbitrary expression
//	v, err = client.Eval(ctx, "DOU1234:get(0) + 1")
//
// # Typed Replies
//
// Get, Execute and Eval wrap the expression so the CLU answers with
// "<lua type>:<value>". Numbers decode to float64, strings to string,
// booleans to bool; every other Lua type decodes to nil.
//
// # Asynchronous Calls
//
// Each call has an *Async variant returning a Future. The call runs on its
// own goroutine, so concurrent callers are bounded only by the transport's
// connection limit.
package interaction
