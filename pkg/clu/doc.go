// Package clu connects to one Grenton CLU.
//
// A Client wires the cipher, the request transport, the RPC client and the
// subscription engine for a single device:
//
//	cfg, err := clu.LoadConfig("clu.yaml")
//	if err != nil { ... }
//	client, err := clu.Dial(ctx, cfg)
//	if err != nil { ... }
//	defer client.Close()
//
//	v, err := client.RPC().Get(ctx, "DOU1234", 0)
//	err = client.Subscriptions().Register(ctx, "DOU1234", 0, func(u subscription.UpdateContext) {
//		fmt.Println(u.Entry, u.Value)
//	})
//
// Several clients may run side by side in one process; nothing is shared
// between them.
package clu
