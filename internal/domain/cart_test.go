package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineKeyIgnoresAddonOrder(t *testing.T) {
	a := NewLineKey("hoodie", "l", []string{"embroidery", "patch"}, "")
	b := NewLineKey("hoodie", "l", []string{"patch", "embroidery"}, "")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, NewLineKey("hoodie", "m", []string{"patch", "embroidery"}, ""))
	assert.NotEqual(t, a, NewLineKey("hoodie", "l", []string{"patch"}, ""))
	assert.NotEqual(t, NewLineKey("tee", "", nil, "red"), NewLineKey("tee", "", nil, "blue"))
}

func TestNewCartLineRejectsSeparatorsInOptions(t *testing.T) {
	// "a|b" as a size and "a" + size "b" would otherwise build the same key
	p := &Product{
		ID: "hoodie", Name: "Hoodie", Price: d("40"),
		Sizes:  []Size{{ID: "a|b", Price: d("40")}, {ID: "b", Price: d("40")}},
		Addons: []Addon{{ID: "x,y"}, {ID: "x"}, {ID: "y"}},
	}

	for _, sel := range []Selection{
		{SizeID: "a|b"},
		{AddonIDs: []string{"x,y"}},
		{Color: "red|blue"},
	} {
		_, err := NewCartLine(p, 1, sel, now)
		assert.ErrorIs(t, err, ErrInvalidOption, "%+v", sel)
	}

	line, err := NewCartLine(p, 1, Selection{SizeID: "b", AddonIDs: []string{"y", "x"}}, now)
	require.NoError(t, err)
	assert.Equal(t, NewLineKey("hoodie", "b", []string{"x", "y"}, ""), line.Key)

	assert.True(t, ValidOptionID("xl"))
	assert.False(t, ValidOptionID("x,l"))
	assert.False(t, ValidOptionID("x|l"))
}

func TestNewCartLine(t *testing.T) {
	p := hoodie()
	p.WholesaleInfo.Cost = d("40")

	line, err := NewCartLine(p, 3, Selection{SizeID: "m", AddonIDs: []string{"patch"}}, now)
	require.NoError(t, err)

	assert.Equal(t, "m", line.SizeID())
	assert.True(t, d("140").Equal(line.UnitFinalPrice))
	assert.True(t, d("420").Equal(line.TotalPrice))
	assert.True(t, d("40").Equal(line.UnitCost))
	require.Len(t, line.Addons, 1)
	assert.Equal(t, "Patch", line.Addons[0].Label)

	_, err = NewCartLine(p, 0, Selection{}, now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNewCartLineChecksColor(t *testing.T) {
	p := &Product{ID: "tee", Name: "Tee", Price: d("25"), Colors: []string{"red"}}

	_, err := NewCartLine(p, 1, Selection{Color: "green"}, now)
	assert.ErrorIs(t, err, ErrUnknownColor)

	line, err := NewCartLine(p, 1, Selection{Color: "red"}, now)
	require.NoError(t, err)
	assert.Equal(t, "red", line.Color)
}

func TestWithQuantityKeepsTotalInStep(t *testing.T) {
	line, err := NewCartLine(hoodie(), 1, Selection{}, now)
	require.NoError(t, err)

	line, err = line.WithQuantity(4)
	require.NoError(t, err)
	assert.True(t, d("400").Equal(line.TotalPrice))

	_, err = line.WithQuantity(0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
