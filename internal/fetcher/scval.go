package fetcher

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// ConvertScValToJSON converts a Soroban ScVal into a JSON-marshalable Go
// value, so store.StoredEvent's Topics/Data fields can be compared against
// query filters and rendered over the API without carrying XDR types past
// this package boundary.
func ConvertScValToJSON(val xdr.ScVal) (interface{}, error) {
	switch val.Type {
	case xdr.ScValTypeScvBool:
		if val.B == nil {
			return nil, fmt.Errorf("scvBool has nil value")
		}
		return *val.B, nil

	case xdr.ScValTypeScvVoid:
		return nil, nil

	case xdr.ScValTypeScvU32:
		if val.U32 == nil {
			return nil, fmt.Errorf("scvU32 has nil value")
		}
		return *val.U32, nil

	case xdr.ScValTypeScvI32:
		if val.I32 == nil {
			return nil, fmt.Errorf("scvI32 has nil value")
		}
		return *val.I32, nil

	case xdr.ScValTypeScvU64:
		if val.U64 == nil {
			return nil, fmt.Errorf("scvU64 has nil value")
		}
		return *val.U64, nil

	case xdr.ScValTypeScvI64:
		if val.I64 == nil {
			return nil, fmt.Errorf("scvI64 has nil value")
		}
		return *val.I64, nil

	case xdr.ScValTypeScvTimepoint:
		if val.Timepoint == nil {
			return nil, fmt.Errorf("scvTimepoint has nil value")
		}
		return map[string]interface{}{"type": "timepoint", "value": *val.Timepoint}, nil

	case xdr.ScValTypeScvDuration:
		if val.Duration == nil {
			return nil, fmt.Errorf("scvDuration has nil value")
		}
		return map[string]interface{}{"type": "duration", "value": *val.Duration}, nil

	case xdr.ScValTypeScvU128:
		if val.U128 == nil {
			return nil, fmt.Errorf("scvU128 has nil value")
		}
		return map[string]interface{}{"type": "u128", "value": uint128String(*val.U128)}, nil

	case xdr.ScValTypeScvI128:
		if val.I128 == nil {
			return nil, fmt.Errorf("scvI128 has nil value")
		}
		return map[string]interface{}{"type": "i128", "value": int128String(*val.I128)}, nil

	case xdr.ScValTypeScvU256:
		if val.U256 == nil {
			return nil, fmt.Errorf("scvU256 has nil value")
		}
		return map[string]interface{}{"type": "u256", "value": uint256String(*val.U256)}, nil

	case xdr.ScValTypeScvI256:
		if val.I256 == nil {
			return nil, fmt.Errorf("scvI256 has nil value")
		}
		return map[string]interface{}{"type": "i256", "value": int256String(*val.I256)}, nil

	case xdr.ScValTypeScvSymbol:
		if val.Sym == nil {
			return nil, fmt.Errorf("scvSymbol has nil value")
		}
		return string(*val.Sym), nil

	case xdr.ScValTypeScvString:
		if val.Str == nil {
			return nil, fmt.Errorf("scvString has nil value")
		}
		return string(*val.Str), nil

	case xdr.ScValTypeScvBytes:
		if val.Bytes == nil {
			return nil, fmt.Errorf("scvBytes has nil value")
		}
		return map[string]interface{}{
			"type":   "bytes",
			"hex":    hex.EncodeToString(*val.Bytes),
			"base64": base64.StdEncoding.EncodeToString(*val.Bytes),
		}, nil

	case xdr.ScValTypeScvAddress:
		if val.Address == nil {
			return nil, fmt.Errorf("scvAddress has nil value")
		}
		return convertScAddress(*val.Address)

	case xdr.ScValTypeScvVec:
		if val.Vec == nil {
			return nil, fmt.Errorf("scvVec has nil value")
		}
		items := **val.Vec
		result := make([]interface{}, 0, len(items))
		for _, item := range items {
			converted, err := ConvertScValToJSON(item)
			if err != nil {
				result = append(result, map[string]interface{}{"error": err.Error()})
				continue
			}
			result = append(result, converted)
		}
		return result, nil

	case xdr.ScValTypeScvMap:
		if val.Map == nil {
			return nil, fmt.Errorf("scvMap has nil value")
		}
		entries := **val.Map
		result := make(map[string]interface{}, len(entries))
		for _, entry := range entries {
			key, keyErr := ConvertScValToJSON(entry.Key)
			value, valErr := ConvertScValToJSON(entry.Val)

			keyStr := fmt.Sprintf("%v", key)
			if keyErr != nil {
				keyStr = fmt.Sprintf("error:%s", keyErr)
			}
			if valErr != nil {
				result[keyStr] = map[string]interface{}{"error": valErr.Error()}
				continue
			}
			result[keyStr] = value
		}
		return map[string]interface{}{"type": "map", "entries": result}, nil

	case xdr.ScValTypeScvContractInstance:
		return map[string]interface{}{"type": "contract_instance"}, nil

	case xdr.ScValTypeScvLedgerKeyContractInstance:
		return map[string]interface{}{"type": "ledger_key_contract_instance"}, nil

	case xdr.ScValTypeScvLedgerKeyNonce:
		if val.NonceKey == nil {
			return nil, fmt.Errorf("scvLedgerKeyNonce has nil value")
		}
		return map[string]interface{}{"type": "ledger_key_nonce", "nonce": val.NonceKey.Nonce}, nil

	default:
		return nil, fmt.Errorf("unsupported scval type: %s", val.Type.String())
	}
}

func convertScAddress(addr xdr.ScAddress) (interface{}, error) {
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil {
			return nil, fmt.Errorf("account address has nil account id")
		}
		ed25519 := addr.AccountId.Ed25519
		encoded, err := strkey.Encode(strkey.VersionByteAccountID, ed25519[:])
		if err != nil {
			return nil, fmt.Errorf("encoding account address: %w", err)
		}
		return map[string]interface{}{"type": "account", "address": encoded}, nil

	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return nil, fmt.Errorf("contract address has nil contract id")
		}
		encoded, err := strkey.Encode(strkey.VersionByteContract, (*addr.ContractId)[:])
		if err != nil {
			return nil, fmt.Errorf("encoding contract address: %w", err)
		}
		return map[string]interface{}{"type": "contract", "address": encoded}, nil

	default:
		return nil, fmt.Errorf("unknown scaddress type: %v", addr.Type)
	}
}

func uint128String(v xdr.UInt128Parts) string {
	n := new(big.Int).SetUint64(uint64(v.Hi))
	n.Lsh(n, 64)
	n.Add(n, new(big.Int).SetUint64(uint64(v.Lo)))
	return n.String()
}

func int128String(v xdr.Int128Parts) string {
	hi := new(big.Int).SetUint64(uint64(v.Hi))
	if uint64(v.Hi)&(1<<63) != 0 {
		hi.Sub(hi, new(big.Int).Lsh(big.NewInt(1), 64))
	}
	hi.Lsh(hi, 64)
	hi.Add(hi, new(big.Int).SetUint64(uint64(v.Lo)))
	return hi.String()
}

func uint256String(v xdr.UInt256Parts) string {
	n := new(big.Int).SetUint64(uint64(v.HiHi))
	n.Lsh(n, 64)
	n.Add(n, new(big.Int).SetUint64(uint64(v.HiLo)))
	n.Lsh(n, 64)
	n.Add(n, new(big.Int).SetUint64(uint64(v.LoHi)))
	n.Lsh(n, 64)
	n.Add(n, new(big.Int).SetUint64(uint64(v.LoLo)))
	return n.String()
}

func int256String(v xdr.Int256Parts) string {
	hiHi := new(big.Int).SetUint64(uint64(v.HiHi))
	if uint64(v.HiHi)&(1<<63) != 0 {
		hiHi.Sub(hiHi, new(big.Int).Lsh(big.NewInt(1), 64))
	}
	hiHi.Lsh(hiHi, 64)
	hiHi.Add(hiHi, new(big.Int).SetUint64(uint64(v.HiLo)))
	hiHi.Lsh(hiHi, 64)
	hiHi.Add(hiHi, new(big.Int).SetUint64(uint64(v.LoHi)))
	hiHi.Lsh(hiHi, 64)
	hiHi.Add(hiHi, new(big.Int).SetUint64(uint64(v.LoLo)))
	return hiHi.String()
}
