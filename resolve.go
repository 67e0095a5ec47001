package yapp

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RecipientSource names which candidate won the resolution.
type RecipientSource string

const (
	SourceProduct         RecipientSource = "product"
	SourceMetadata        RecipientSource = "metadata"
	SourceMerchantENS     RecipientSource = "merchant_ens"
	SourceMerchantAddress RecipientSource = "merchant_address"
	SourceETHFallback     RecipientSource = "eth_fallback"
)

// RecipientCandidates lists everything that could serve as the payment
// recipient, in resolution order.
type RecipientCandidates struct {
	ProductAddress  string
	MetadataAddress string
	MerchantENS     string
	MerchantAddress string

	// ETHFallback is a plain hex address used instead of an ENS-shaped
	// identifier when present, avoiding resolution failures at payment
	// time.
	ETHFallback string
}

// ResolvedRecipient is the outcome of the resolution policy.
type ResolvedRecipient struct {
	Identifier string
	Source     RecipientSource
	IsENS      bool
}

// minRecipientLength rejects identifiers too short to be an address or
// an ENS name.
const minRecipientLength = 8

// ResolveRecipient applies the ordered recipient resolution policy:
// product address, then metadata address, then merchant ENS, then
// merchant address. When the chosen identifier is ENS-shaped and a
// valid hex fallback address exists, the fallback wins. An identifier
// that is unusable and has no valid fallback is an error.
func ResolveRecipient(c RecipientCandidates) (ResolvedRecipient, error) {
	identifier, source := firstCandidate(c)

	fallback := ""
	if common.IsHexAddress(c.ETHFallback) {
		fallback = c.ETHFallback
	}

	if len(identifier) < minRecipientLength {
		if fallback != "" {
			return ResolvedRecipient{Identifier: fallback, Source: SourceETHFallback}, nil
		}
		return ResolvedRecipient{}, fmt.Errorf("invalid or missing payment address (candidate %q)", identifier)
	}

	if IsENSLike(identifier) {
		if fallback != "" {
			return ResolvedRecipient{Identifier: fallback, Source: SourceETHFallback}, nil
		}
		return ResolvedRecipient{Identifier: identifier, Source: source, IsENS: true}, nil
	}

	return ResolvedRecipient{Identifier: identifier, Source: source}, nil
}

// IsENSLike reports whether an identifier looks like an ENS name rather
// than a raw address.
func IsENSLike(identifier string) bool {
	return strings.Contains(identifier, ".eth") || strings.Contains(identifier, ".id")
}

func firstCandidate(c RecipientCandidates) (string, RecipientSource) {
	switch {
	case c.ProductAddress != "":
		return c.ProductAddress, SourceProduct
	case c.MetadataAddress != "":
		return c.MetadataAddress, SourceMetadata
	case c.MerchantENS != "":
		return c.MerchantENS, SourceMerchantENS
	default:
		return c.MerchantAddress, SourceMerchantAddress
	}
}
