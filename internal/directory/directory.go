// Package directory is an in-memory Kademlia-style peer directory ordered by
// XOR distance between Hash160 node ids.
package directory

import (
	"encoding/hex"
	"math/bits"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
)

// DefaultBucketSize is the Kademlia K
const DefaultBucketSize = 20

type nodeID [contact.NodeIDSize]byte

func parseID(s string) (nodeID, bool) {
	var id nodeID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// distCmp compares the distances a->target and b->target
func distCmp(target, a, b nodeID) int {
	for i := range target {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da > db {
			return 1
		} else if da < db {
			return -1
		}
	}
	return 0
}

// logDist returns log2(a ^ b)
func logDist(a, b nodeID) int {
	lz := 0
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			lz += 8
		} else {
			lz += bits.LeadingZeros8(x)
			break
		}
	}
	return len(a)*8 - lz
}

// Config configures a Directory
type Config struct {
	// Self is the hex node id of the local node; it is never stored
	Self string

	// BucketSize bounds the contacts kept per distance bucket
	BucketSize int

	Logger *zap.Logger
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.BucketSize <= 0 {
		c.BucketSize = DefaultBucketSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

type entry struct {
	id      nodeID
	contact contact.Contact
}

// Directory implements contact.Directory
type Directory struct {
	mu         sync.RWMutex
	self       nodeID
	selfHex    string
	bucketSize int
	logger     *zap.Logger

	entries   map[string]*entry
	buckets   [contact.NodeIDSize*8 + 1]int
	listeners []func(contact.Contact)
}

// New creates an empty directory
func New(cfg Config) *Directory {
	cfg.SetDefaults()
	self, _ := parseID(cfg.Self)
	return &Directory{
		self:       self,
		selfHex:    strings.ToLower(cfg.Self),
		bucketSize: cfg.BucketSize,
		logger:     cfg.Logger,
		entries:    make(map[string]*entry),
	}
}

// Add inserts or refreshes c. It returns false when c is the local node, has
// a malformed id, or its bucket is full.
func (d *Directory) Add(c contact.Contact) bool {
	c.ID = strings.ToLower(c.ID)
	id, ok := parseID(c.ID)
	if !ok || c.ID == d.selfHex || c.Address == "" {
		return false
	}

	d.mu.Lock()
	if e, exists := d.entries[c.ID]; exists {
		e.contact = c
		d.mu.Unlock()
		return true
	}
	bucket := logDist(d.self, id)
	if d.buckets[bucket] >= d.bucketSize {
		d.mu.Unlock()
		d.logger.Debug("bucket full, contact dropped", zap.String("contact", c.ID), zap.Int("bucket", bucket))
		return false
	}
	d.buckets[bucket]++
	d.entries[c.ID] = &entry{id: id, contact: c}
	listeners := append([]func(contact.Contact){}, d.listeners...)
	d.mu.Unlock()

	d.logger.Debug("contact added", zap.String("contact", c.ID), zap.String("address", c.Address))
	for _, fn := range listeners {
		fn(c)
	}
	return true
}

// Remove drops the contact stored for id
func (d *Directory) Remove(id string) bool {
	id = strings.ToLower(id)
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return false
	}
	d.buckets[logDist(d.self, e.id)]--
	delete(d.entries, id)
	return true
}

// ClosestContactsTo returns up to count contacts ordered by XOR distance to
// key. A non-positive count returns every contact.
func (d *Directory) ClosestContactsTo(key string, count int, excludeSelf bool) []contact.Contact {
	key = strings.ToLower(key)
	target, ok := parseID(key)
	if !ok {
		return nil
	}

	d.mu.RLock()
	entries := make([]*entry, 0, len(d.entries))
	for id, e := range d.entries {
		if excludeSelf && id == key {
			continue
		}
		entries = append(entries, e)
	}
	d.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return distCmp(target, entries[i].id, entries[j].id) < 0
	})
	if count > 0 && len(entries) > count {
		entries = entries[:count]
	}

	out := make([]contact.Contact, len(entries))
	for i, e := range entries {
		out[i] = e.contact
	}
	return out
}

// All returns every known contact
func (d *Directory) All() []contact.Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]contact.Contact, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.contact)
	}
	return out
}

// Get returns the contact stored for id
func (d *Directory) Get(id string) (contact.Contact, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[strings.ToLower(id)]
	if !ok {
		return contact.Contact{}, false
	}
	return e.contact, true
}

// Size returns the number of known contacts
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// OnAdd registers fn to run after each new contact is stored
func (d *Directory) OnAdd(fn func(contact.Contact)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

var _ contact.Directory = (*Directory)(nil)
