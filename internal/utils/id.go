package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDProvider issues opaque identifiers. All id generation goes through an
// injected provider so tests can run with a deterministic sequence instead of
// random ULIDs/UUIDs.
type IDProvider interface {
	// NewID returns a stable record identifier (primary key).
	NewID() string

	// NewGroupID returns an identifier for a combi cargo group.
	NewGroupID() string
}

// ULIDProvider is the production provider: ULIDs for record ids (sortable,
// matches the rest of the book) and UUIDs for combi group ids.
type ULIDProvider struct{}

func (ULIDProvider) NewID() string {
	return ulid.Make().String()
}

func (ULIDProvider) NewGroupID() string {
	return uuid.NewString()
}

// SequenceProvider issues "<prefix>-1", "<prefix>-2", ... Safe for concurrent
// use. Intended for tests.
type SequenceProvider struct {
	Prefix string
	n      atomic.Int64
}

func (p *SequenceProvider) NewID() string {
	return fmt.Sprintf("%s-%d", p.Prefix, p.n.Add(1))
}

func (p *SequenceProvider) NewGroupID() string {
	return fmt.Sprintf("%s-grp-%d", p.Prefix, p.n.Add(1))
}

// GenerateBusinessKey creates a deterministic, versioned hash for
// deduplication of externally-sourced records (contracts, counterparties).
func GenerateBusinessKey(version string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for _, k := range keys {
		canonical.WriteString(strings.ToLower(strings.TrimSpace(fields[k])) + "|")
	}

	hash := sha256.Sum256([]byte(canonical.String()))
	encoded := base64.RawURLEncoding.EncodeToString(hash[:])

	return version + "_" + encoded
}
