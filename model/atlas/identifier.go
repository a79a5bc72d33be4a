package atlas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Identifier is a 32-byte content digest. It is used for transaction digests,
// effects digests, checkpoint content digests and authority identifiers.
type Identifier [32]byte

// IdentifierLen is the byte length of an Identifier.
const IdentifierLen = 32

// ZeroID is the zero value of Identifier.
var ZeroID = Identifier{}

// HashToIdentifier returns the identifier of an arbitrary byte slice.
func HashToIdentifier(data []byte) Identifier {
	return Identifier(sha256.Sum256(data))
}

// MakeIdentifier hashes the concatenation of the given byte slices into a
// single identifier. It is used to derive identifiers from multiple fields.
func MakeIdentifier(parts ...[]byte) Identifier {
	h := sha256.New()
	for _, part := range parts {
		h.Write(part)
	}
	var id Identifier
	copy(id[:], h.Sum(nil))
	return id
}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identifier) Bytes() []byte {
	return id[:]
}

func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identifier) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("could not decode identifier hex: %w", err)
	}
	if len(raw) != IdentifierLen {
		return fmt.Errorf("invalid identifier length (%d != %d)", len(raw), IdentifierLen)
	}
	copy(id[:], raw)
	return nil
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *Identifier) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return id.UnmarshalText([]byte(text))
}
