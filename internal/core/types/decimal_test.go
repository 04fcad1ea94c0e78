package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    Quantity
		wantErr bool
	}{
		{in: "12", want: 120_000},
		{in: "-3.5", want: -35_000},
		{in: "0.0001", want: 1},
		{in: "+2.25", want: 22_500},
		{in: ".5", want: 5_000},
		{in: "1.50000", want: 15_000},
		{in: "1.00001", wantErr: true},
		{in: "1e3", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantity_JSON(t *testing.T) {
	var payload struct {
		Qty  Quantity `json:"qty"`
		Text Quantity `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"qty": 10.5, "text": "-0.25"}`), &payload))
	assert.Equal(t, MustQuantity("10.5"), payload.Qty)
	assert.Equal(t, MustQuantity("-0.25"), payload.Text)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"qty": 10.5, "text": -0.25}`, string(out))
}

func TestQuantity_Decimal(t *testing.T) {
	q := MustQuantity("2.5")
	assert.True(t, q.Decimal().Equal(MustMoney("2.5")))
	assert.Equal(t, "-0.5000", MustQuantity("-0.5").String())
	assert.Equal(t, NewQuantity(3), MustQuantity("3"))
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, MinorUnits(12346), ToMinorUnits(MustMoney("123.455"), 2))
	assert.Equal(t, MinorUnits(-12346), ToMinorUnits(MustMoney("-123.455"), 2))
	assert.Equal(t, MinorUnits(25000), ToMinorUnits(MustMoney("25000"), 0))
	assert.True(t, RoundForDisplay(MustMoney("6.666666"), 2).Equal(MustMoney("6.67")))
}
