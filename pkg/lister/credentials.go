package lister

import (
	"context"
	"fmt"
)

// Credential is one identifier/secret pair scoped to a (lister name,
// instance) pair. API tokens travel in the Password slot with an empty or
// informative Username.
type Credential struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// SecretStore looks up registered credentials for a lister instance.
type SecretStore interface {
	// Credentials returns every credential registered for
	// (listerName, instance). An empty result means anonymous access.
	Credentials(ctx context.Context, listerName, instance string) ([]Credential, error)
}

// ResolveCredentials returns the candidate credential set for a lister:
// explicitly supplied credentials win verbatim, otherwise the secret store
// is consulted. A nil store with no explicit credentials yields an empty
// set, i.e. anonymous access. No validation happens here; a credential the
// remote rejects surfaces later as an ordinary transport error.
func ResolveCredentials(ctx context.Context, explicit []Credential, store SecretStore, listerName, instance string) ([]Credential, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if store == nil {
		return nil, nil
	}
	creds, err := store.Credentials(ctx, listerName, instance)
	if err != nil {
		return nil, fmt.Errorf("looking up credentials for %s/%s: %w", listerName, instance, err)
	}
	return creds, nil
}
