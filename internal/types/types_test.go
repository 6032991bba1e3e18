package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminalOrderStatus(t *testing.T) {
	for _, status := range []string{OrderFilled, OrderCancelled, OrderRejected, OrderBlocked} {
		assert.True(t, IsTerminalOrderStatus(status), status)
	}
	for _, status := range []string{OrderPending, OrderPlaced, OrderPartial, ""} {
		assert.False(t, IsTerminalOrderStatus(status), status)
	}
}
