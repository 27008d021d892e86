package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor(" 2022  TOYOTA RAV4 ")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Year: "2022", Maker: "TOYOTA", Model: "RAV4"}, d)
	assert.Equal(t, "2022 TOYOTA RAV4", d.String())

	d, err = ParseDescriptor("2019 Jeep Grand Cherokee")
	require.NoError(t, err)
	assert.Equal(t, "Grand Cherokee", d.Model)

	for _, bad := range []string{"", "TOYOTA RAV4", "TOYOTA RAV4 2022", "22 TOYOTA RAV4"} {
		_, err := ParseDescriptor(bad)
		assert.ErrorIs(t, err, ErrDescriptor, bad)
	}
}

func TestDescriptor_Matches(t *testing.T) {
	d := Descriptor{Year: "2022", Maker: "Toyota", Model: "RAV4"}
	assert.True(t, d.Matches("TOYOTA RAV4 2022 - 2T3W1RFV"))
	assert.True(t, d.Matches("2022 toyota rav4 hybrid"))
	assert.False(t, d.Matches("TOYOTA RAV4 2021"))
	assert.False(t, d.Matches("TOYOTA COROLLA 2022"))
	assert.False(t, Descriptor{}.Matches("anything"))
}

func TestDescriptor_MatchesWholeWords(t *testing.T) {
	rio := Descriptor{Year: "2019", Maker: "Kia", Model: "Rio"}
	assert.False(t, rio.Matches("KIA RIO5 2019"))
	assert.True(t, rio.Matches("KIA RIO 2019 (RIO5 HATCH)"))
	assert.False(t, Descriptor{Year: "2019", Maker: "Kia", Model: "Rio"}.Matches("KIA RIO 20190"))

	crv := Descriptor{Year: "2021", Maker: "Honda", Model: "CR-V"}
	assert.True(t, crv.Matches("HONDA CR-V 2021"))
	assert.False(t, crv.Matches("HONDA CRV 2021"))
}

func TestParseSummary(t *testing.T) {
	maker, model, year, err := ParseSummary("TOYOTA RAV4 2022")
	require.NoError(t, err)
	assert.Equal(t, []string{"TOYOTA", "RAV4", "2022"}, []string{maker, model, year})

	maker, model, year, err = ParseSummary("  LEXUS  RX 350h 2021 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"LEXUS", "RX 350h", "2021"}, []string{maker, model, year})

	_, _, _, err = ParseSummary("TOYOTA RAV4")
	assert.Error(t, err)
	_, _, _, err = ParseSummary("TOYOTA RAV4 LE")
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	r := Record{Maker: "TOYOTA", Model: "RAV4", Year: "2022", Cylinders: "V6"}
	assert.Equal(t, 6, r.CylinderCount())
	assert.Equal(t, "2022 TOYOTA RAV4", r.Descriptor().String())
	assert.Equal(t, 0, Record{Cylinders: "n/d"}.CylinderCount())
}
