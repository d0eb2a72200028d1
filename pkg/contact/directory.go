package contact

// Directory is the slice of the Kademlia routing table the overlay depends on.
type Directory interface {
	// Add inserts or refreshes a contact. The local node is never stored.
	Add(c Contact) bool

	// ClosestContactsTo returns up to count contacts ordered by XOR distance
	// to the hex encoded key; a non-positive count returns all of them. When
	// excludeSelf is set a contact whose id equals the key is left out.
	ClosestContactsTo(key string, count int, excludeSelf bool) []Contact

	// All returns every known contact in no particular order
	All() []Contact

	// Get returns the contact stored for id
	Get(id string) (Contact, bool)

	// Size returns the number of known contacts
	Size() int

	// OnAdd registers fn to be called whenever a new contact is admitted
	OnAdd(fn func(Contact))
}
