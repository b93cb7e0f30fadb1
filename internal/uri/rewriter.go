package uri

import (
	"fmt"
	"strings"

	"github.com/louissarvin/reloop/internal/domain"
)

// Rewriter turns ipfs:// pointers into fetchable HTTP gateway URLs.
// Anything that is not an ipfs:// URI passes through unchanged.
type Rewriter struct {
	gateway string
}

// NewRewriter creates a rewriter for the given IPFS gateway.
// An empty gateway falls back to the default public one.
func NewRewriter(gateway string) *Rewriter {
	if gateway == "" {
		gateway = domain.DEFAULT_IPFS_GATEWAY
	}
	return &Rewriter{gateway: strings.TrimRight(gateway, "/")}
}

// Rewrite maps "ipfs://<cid>[/path]" to "<gateway>/ipfs/<cid>[/path]"
func (r *Rewriter) Rewrite(raw string) string {
	if !strings.HasPrefix(raw, "ipfs://") {
		return raw
	}

	rest := strings.TrimPrefix(raw, "ipfs://")
	// Some minters encode the redundant "ipfs://ipfs/<cid>" form
	rest = strings.TrimPrefix(rest, "ipfs/")
	if rest == "" {
		return raw
	}

	return fmt.Sprintf("%s/ipfs/%s", r.gateway, rest)
}
