package fetcher

import (
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"
)

func scvU32(v uint32) xdr.ScVal {
	u := xdr.Uint32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}
}

func scvSymbol(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func TestConvertScValToJSONPrimitives(t *testing.T) {
	v, err := ConvertScValToJSON(scvU32(42))
	require.NoError(t, err)
	require.Equal(t, xdr.Uint32(42), v)

	v, err = ConvertScValToJSON(scvSymbol("transfer"))
	require.NoError(t, err)
	require.Equal(t, "transfer", v)

	v, err = ConvertScValToJSON(xdr.ScVal{Type: xdr.ScValTypeScvVoid})
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestConvertScValToJSONVec(t *testing.T) {
	vec := xdr.ScVec{scvU32(1), scvU32(2)}
	vecPtr := &vec
	val := xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &vecPtr}

	v, err := ConvertScValToJSON(val)
	require.NoError(t, err)
	list, ok := v.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	require.Equal(t, xdr.Uint32(1), list[0])
}

func TestConvertScValToJSONU128(t *testing.T) {
	val := xdr.ScVal{Type: xdr.ScValTypeScvU128, U128: &xdr.UInt128Parts{Hi: 1, Lo: 0}}
	v, err := ConvertScValToJSON(val)
	require.NoError(t, err)
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "18446744073709551616", m["value"])
}

func TestConvertScValToJSONMissingPayloadErrors(t *testing.T) {
	_, err := ConvertScValToJSON(xdr.ScVal{Type: xdr.ScValTypeScvU32})
	require.Error(t, err)
}

func TestEventTypeName(t *testing.T) {
	name, err := eventTypeName(xdr.ContractEventTypeContract)
	require.NoError(t, err)
	require.Equal(t, "contract", name)

	name, err = eventTypeName(xdr.ContractEventTypeSystem)
	require.NoError(t, err)
	require.Equal(t, "system", name)

	name, err = eventTypeName(xdr.ContractEventTypeDiagnostic)
	require.NoError(t, err)
	require.Equal(t, "diagnostic", name)
}
