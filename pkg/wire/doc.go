// Package wire implements the textual CLU request protocol.
//
// The protocol is plain text that is encrypted before it goes on the wire
// (see package cipher). A request frame has the form
//
//	req:<local_ip>:<request_id>:<payload>
//
// where request_id is eight random hex characters and payload is a Lua
// expression evaluated by the device. Replies carry the same framing with the
// result after the third colon. Unsolicited client reports pushed by the
// device carry one more segment before the client id:
//
//	<prefix>:<ip>:<id>:<tag>:<client_id>:{<value>,<value>,...}
//
// # Payload Grammar
//
//	<object>:get(<index>)
//	<object>:set(<index>,<value>)
//	<object>:execute(<index>,<arg>,...)     // ",0" when there are no arguments
//	SYSTEM:clientRegister("<ip>",<port>,<client_id>,{{<object>,<index>},...})
//	SYSTEM:clientDestroy("<ip>",<port>,<client_id>)
//
// String arguments are double quoted, booleans and numbers are not.
//
// # Typed Evaluation
//
// Most calls wrap the expression so that the device answers with
// "<lua type>:<value>", which DecodeTyped maps onto float64, string, bool or
// nil.
//
// # List Literals
//
// Value vectors use Lua table constructor syntax: braces, commas, double
// quoted strings, true, false, nil and decimal numbers, nested to any depth.
// ParseList decodes them into []any.
package wire
