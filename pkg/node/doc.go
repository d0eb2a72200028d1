// Package node defines the contract of an overlay node as seen by its local
// clients.
//
// A node owns an Equihash backed identity, a Kademlia style peer directory,
// a transport and a gossip engine. Local clients (control API sessions)
// authenticate, subscribe to topics and publish under the node's own
// fingerprint:
//
//	client, err := n.AuthenticateClient(ctx, "cli")
//	if err != nil {
//		return err
//	}
//	sub, err := n.Subscribe(ctx, client, peerFingerprint)
//	...
//	for d := range client.Deliveries() {
//		fmt.Println(d.Topic, d.Contents)
//	}
//
// Publications can only be made under the publisher's own fingerprint, so a
// topic names a publisher rather than a subject.
package node
