package quasar

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
)

// Origin is the publisher's signed assertion carried by a publication
type Origin struct {
	PublicKey string `json:"pubkey"`
	Proof     string `json:"proof"`
	Nonce     uint32 `json:"nonce"`
	Signature string `json:"signature"`
	Recovery  byte   `json:"recovery"`
}

// Publication is the PUBLISH payload
type Publication struct {
	UUID       string   `json:"uuid"`
	Topic      string   `json:"topic"`
	Contents   string   `json:"contents"`
	Origin     Origin   `json:"origin"`
	Publishers []string `json:"publishers"`
	TTL        int      `json:"ttl"`
}

// relayed returns the copy forwarded to the next hop
func (p Publication) relayed() Publication {
	p.Publishers = append([]string(nil), p.Publishers...)
	p.TTL--
	return p
}

// canonicalMessage builds the signed message
//
//	hex(uuid) :: contents :: pubkey :: proof :: hex(byte(nonce))
//
// The nonce is truncated to its low byte. Deployed peers sign exactly this,
// so widening it would break interoperability.
func canonicalMessage(uuid string, contents []byte, pubkey, proof string, nonce uint32) []byte {
	return []byte(strings.Join([]string{
		hex.EncodeToString([]byte(uuid)),
		hex.EncodeToString(contents),
		pubkey,
		proof,
		hex.EncodeToString([]byte{byte(nonce)}),
	}, "::"))
}

// signOrigin signs a publication of contents as id
func signOrigin(key *secp256k1.PrivateKey, id *identity.Identity, uuid string, contents []byte) Origin {
	pubkey := hex.EncodeToString(id.PublicKey)
	proof := hex.EncodeToString(id.Proof)
	msg := canonicalMessage(uuid, contents, pubkey, proof, id.Nonce)

	sig, recovery := identity.Sign(key, identity.Hash256(msg))
	return Origin{
		PublicKey: pubkey,
		Proof:     proof,
		Nonce:     id.Nonce,
		Signature: hex.EncodeToString(sig),
		Recovery:  recovery,
	}
}

// verifyOrigin checks the topic binding, the signature and the origin's
// proof-of-work. Any failure is returned; nothing fails open.
func verifyOrigin(ctx context.Context, pub *Publication, opts ...identity.Option) error {
	contents, err := hex.DecodeString(pub.Contents)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContents, err)
	}
	o := pub.Origin
	proof, err := hex.DecodeString(o.Proof)
	if err != nil {
		return fmt.Errorf("%w: proof: %v", ErrInvalidProof, err)
	}
	if !strings.EqualFold(pub.Topic, hex.EncodeToString(identity.Hash160(proof))) {
		return ErrTopicMismatch
	}

	pubkey, err := hex.DecodeString(o.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInvalidSignature, err)
	}
	sig, err := hex.DecodeString(o.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	msg := canonicalMessage(pub.UUID, contents, strings.ToLower(o.PublicKey), strings.ToLower(o.Proof), o.Nonce)
	if err := identity.VerifySignature(pubkey, identity.Hash256(msg), sig, o.Recovery); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ok, err := identity.New(pubkey, o.Nonce, proof, opts...).Validate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !ok {
		return ErrInvalidProof
	}
	return nil
}
