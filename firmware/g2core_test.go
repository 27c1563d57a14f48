package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestG2Core_ParseStatusWithRotaryAxes(t *testing.T) {
	raw := `{"sr":{"stat":"Run","mpos":{"x":1.0,"y":2.0,"z":3.0,"a":90.0,"b":45.0,"c":0.0}}}`

	resp, err := G2Core{}.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, KindStatus, resp.Kind)
	st := resp.Status
	require.NotNil(t, st.MPos)

	assert.Equal(t, Coord(90), st.MPos.A)
	assert.Equal(t, Coord(45), st.MPos.B)
	assert.Equal(t, Coord(0), st.MPos.C)
}

func TestG2Core_ParsePartialAxes(t *testing.T) {
	resp, err := G2Core{}.Parse(`{"sr":{"stat":"Idle","pos":{"x":1.0,"z":2.0}}}`)
	require.NoError(t, err)
	st := resp.Status
	require.NotNil(t, st.WPos)

	assert.Equal(t, Coord(1), st.WPos.X)
	assert.False(t, st.WPos.Y.Valid, "missing y must stay missing, not zero")
	assert.Equal(t, Coord(2), st.WPos.Z)
}

func TestG2Core_ParseStartup(t *testing.T) {
	resp, err := G2Core{}.Parse("g2core 101.03 ready")
	require.NoError(t, err)
	assert.Equal(t, KindStartup, resp.Kind)
}

func TestG2Core_ParseAlarmlessError(t *testing.T) {
	resp, err := G2Core{}.Parse(`{"r":{"er":{"code":2,"msg":"Command rejected"}},"f":[1,2,0]}`)
	require.NoError(t, err)
	assert.Equal(t, KindError, resp.Kind)
	assert.Equal(t, 2, resp.Code)
	assert.Equal(t, "Command rejected", resp.Message)
}

func TestDialectNames(t *testing.T) {
	assert.Equal(t, "GRBL", GRBL{}.Name())
	assert.Equal(t, "TinyG", TinyG{}.Name())
	assert.Equal(t, "g2core", G2Core{}.Name())
}
