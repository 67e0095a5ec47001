package yapp

import (
	"fmt"
	"strings"
)

// VerifyConfig carries the deployment-level verification policy.
type VerifyConfig struct {
	// RequiredChainID, when set, rejects payments reported on any other
	// network.
	RequiredChainID *int64
}

// Verify decides whether a reported payment actually satisfies an
// order. It is a pure function: no retries, no I/O. Checks run in
// order and short-circuit on the first failure:
//
//  1. the order must exist locally;
//  2. the payment must be confirmed (otherwise the caller keeps
//     polling rather than rejecting permanently);
//  3. amount >= price (overpayment is accepted);
//  4. currency must match exactly;
//  5. the expected recipient must be a sub-identity of the merchant's
//     root identity, enforcing per-order payment addresses;
//  6. the reported recipient must match, case-insensitively;
//  7. the memo must equal the order id exactly;
//  8. the network must match when one is required.
func Verify(order Order, remote RemotePayment, cfg VerifyConfig) Outcome {
	if order.OrderID == "" {
		return rejected(ReasonOrderNotFound,
			"could not find order details in this browser for this payment; please try again from the device you checked out on")
	}

	if !remote.Confirmed() {
		return rejected(ReasonNotYetConfirmed,
			fmt.Sprintf("payment %s not confirmed yet", remote.Memo))
	}

	if remote.Amount < order.Price {
		return rejected(ReasonAmountTooLow,
			fmt.Sprintf("payment amount (%v) is less than product price (%v)", remote.Amount, order.Price))
	}

	if remote.Currency != order.Currency {
		return rejected(ReasonCurrencyMismatch,
			fmt.Sprintf("payment currency (%s) does not match product currency (%s)", remote.Currency, order.Currency))
	}

	expected := strings.ToLower(order.ExpectedRecipient)
	if !IsSubIdentity(expected) {
		return rejected(ReasonRecipientNotSubdomain,
			fmt.Sprintf("expected recipient is not an ENS subdomain: %s", expected))
	}

	recipient := strings.ToLower(remote.Recipient)
	if recipient != expected {
		return rejected(ReasonRecipientMismatch,
			fmt.Sprintf("payment recipient (%s) does not match expected ENS subdomain (%s)", recipient, expected))
	}

	if remote.Memo != order.OrderID {
		return rejected(ReasonMemoMismatch,
			fmt.Sprintf("payment memo (%s) does not match expected order id (%s)", remote.Memo, order.OrderID))
	}

	if cfg.RequiredChainID != nil && remote.ChainID != nil && *remote.ChainID != *cfg.RequiredChainID {
		return rejected(ReasonWrongChain,
			fmt.Sprintf("payment was made on the wrong network (chainId: %d)", *remote.ChainID))
	}

	return Outcome{
		Accepted: true,
		Order: &OrderDetails{
			Name:        order.Name,
			Price:       order.Price,
			Currency:    order.Currency,
			Emoji:       order.Emoji,
			ConfirmedAt: remote.ConfirmedAt(),
		},
	}
}

// IsSubIdentity reports whether an identifier is a recognizable
// sub-identity of a root ENS name: a dotted name with more than one
// label before the .eth suffix. A bare root identity does not qualify.
func IsSubIdentity(identifier string) bool {
	if !strings.HasSuffix(identifier, ".eth") {
		return false
	}
	return len(strings.Split(identifier, ".")) > 2
}

func rejected(reason, message string) Outcome {
	return Outcome{Reason: reason, Message: message}
}
