package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrade_CloneIsDeep(t *testing.T) {
	r := 1.5
	stop := 95.0
	exitDate := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	orig := &Trade{
		ID:       "t-1",
		StopLoss: &stop,
		ExitDate: &exitDate,
		PartialExits: []PartialExit{
			{Date: exitDate, Price: 110, Shares: 10, RMultiple: &r},
		},
	}

	c := orig.Clone()
	require.Len(t, c.PartialExits, 1)
	require.NotNil(t, c.PartialExits[0].RMultiple)
	assert.NotSame(t, orig.PartialExits[0].RMultiple, c.PartialExits[0].RMultiple)
	assert.NotSame(t, orig.StopLoss, c.StopLoss)

	*c.PartialExits[0].RMultiple = -1
	c.PartialExits[0].Price = 1
	*c.StopLoss = 1
	assert.Equal(t, 1.5, *orig.PartialExits[0].RMultiple)
	assert.Equal(t, 110.0, orig.PartialExits[0].Price)
	assert.Equal(t, 95.0, *orig.StopLoss)
}
