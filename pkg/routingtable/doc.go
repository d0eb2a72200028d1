// Package routingtable defines the local subscriber table of a node.
//
// The gossip engine delivers each publication once per topic. A node
// serving several local consumers (control API streams, the CLI) registers
// a single engine handler per topic and uses a RoutingTable to fan the
// delivery out:
//
//	sub := routingtable.NewLocalSubscriber("client-1")
//	err := table.Subscribe(ctx, topic, sub)
//	...
//	subs, _ := table.GetSubscribers(ctx, topic)
//	for _, s := range subs {
//		s.Deliver(d)
//	}
//
// Subscribing to Wildcard receives every topic the node is subscribed to.
package routingtable
