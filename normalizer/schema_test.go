package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCanonical(t *testing.T) {
	valid := []string{
		`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042"}`,
		`{"type":"payment_complete","txHash":"0xabc","memo":"ABC_00042"}`,
		`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042","chainId":8453}`,
		`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042","chainId":null}`,
	}
	for _, raw := range valid {
		assert.True(t, validCanonical([]byte(raw)), raw)
	}

	invalid := []string{
		`{"type":"payment_complete","txHash":"","orderId":"ABC_00042"}`,
		`{"type":"payment_complete","txHash":"0xabc"}`,
		`{"type":"payment_complete","orderId":"ABC_00042"}`,
		`{"type":"other","txHash":"0xabc","orderId":"ABC_00042"}`,
		`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042","chainId":"8453"}`,
		`[]`,
		`{}`,
	}
	for _, raw := range invalid {
		assert.False(t, validCanonical([]byte(raw)), raw)
	}
}
