package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-gate/internal/model"
)

func TestParseSlotUpdate(t *testing.T) {
	u, err := ParseSlotUpdate([]byte("3:occupied"), 8)
	require.NoError(t, err)
	assert.Equal(t, SlotUpdate{SlotID: 3, Status: model.SlotOccupied}, u)

	u, err = ParseSlotUpdate([]byte(" 8 : FREE \n"), 8)
	require.NoError(t, err)
	assert.Equal(t, SlotUpdate{SlotID: 8, Status: model.SlotFree}, u)

	for _, body := range []string{"", "3", "x:free", "0:free", "9:free", "3:parked", "-1:occupied"} {
		_, err := ParseSlotUpdate([]byte(body), 8)
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestParseCredentialEvent(t *testing.T) {
	dir, id, err := ParseCredentialEvent([]byte("entry:1"))
	require.NoError(t, err)
	assert.Equal(t, model.DirectionEntry, dir)
	assert.Equal(t, "1", id)

	dir, id, err = ParseCredentialEvent([]byte("exit:A1:B2"))
	require.NoError(t, err)
	assert.Equal(t, model.DirectionExit, dir)
	assert.Equal(t, "A1:B2", id)

	for _, body := range []string{"", "entry", "entry:", "enter:1", ":1"} {
		_, _, err := ParseCredentialEvent([]byte(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}
