package casper

import (
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	itemModuleBytes byte = iota
	itemStoredContractByHash
	itemStoredContractByName
	itemStoredVersionedContractByHash
	itemStoredVersionedContractByName
	itemTransfer
)

// HexBytes renders arbitrary bytes as hex in JSON.
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, "invalid hex")
	}

	*b = decoded
	return nil
}

type ModuleBytes struct {
	ModuleBytes HexBytes    `json:"module_bytes"`
	Args        RuntimeArgs `json:"args"`
}

type StoredContractByHash struct {
	Hash       Hash        `json:"hash"`
	EntryPoint string      `json:"entry_point"`
	Args       RuntimeArgs `json:"args"`
}

type StoredContractByName struct {
	Name       string      `json:"name"`
	EntryPoint string      `json:"entry_point"`
	Args       RuntimeArgs `json:"args"`
}

type StoredVersionedContractByHash struct {
	Hash       Hash        `json:"hash"`
	Version    *uint32     `json:"version"`
	EntryPoint string      `json:"entry_point"`
	Args       RuntimeArgs `json:"args"`
}

type StoredVersionedContractByName struct {
	Name       string      `json:"name"`
	Version    *uint32     `json:"version"`
	EntryPoint string      `json:"entry_point"`
	Args       RuntimeArgs `json:"args"`
}

type TransferItem struct {
	Args RuntimeArgs `json:"args"`
}

// ExecutableDeployItem is the payment or session code of a deploy. Exactly
// one variant is set.
type ExecutableDeployItem struct {
	ModuleBytes                   *ModuleBytes                   `json:"ModuleBytes,omitempty"`
	StoredContractByHash          *StoredContractByHash          `json:"StoredContractByHash,omitempty"`
	StoredContractByName          *StoredContractByName          `json:"StoredContractByName,omitempty"`
	StoredVersionedContractByHash *StoredVersionedContractByHash `json:"StoredVersionedContractByHash,omitempty"`
	StoredVersionedContractByName *StoredVersionedContractByName `json:"StoredVersionedContractByName,omitempty"`
	Transfer                      *TransferItem                  `json:"Transfer,omitempty"`
}

// StandardPayment pays for execution from the account's main purse.
func StandardPayment(amount CLValue) ExecutableDeployItem {
	return ExecutableDeployItem{
		ModuleBytes: &ModuleBytes{
			ModuleBytes: HexBytes{},
			Args:        RuntimeArgs{{Name: "amount", Value: amount}},
		},
	}
}

func (item ExecutableDeployItem) variants() int {
	n := 0
	for _, set := range []bool{
		item.ModuleBytes != nil,
		item.StoredContractByHash != nil,
		item.StoredContractByName != nil,
		item.StoredVersionedContractByHash != nil,
		item.StoredVersionedContractByName != nil,
		item.Transfer != nil,
	} {
		if set {
			n++
		}
	}

	return n
}

// Kind returns the variant name as used in JSON.
func (item ExecutableDeployItem) Kind() string {
	switch {
	case item.ModuleBytes != nil:
		return "ModuleBytes"
	case item.StoredContractByHash != nil:
		return "StoredContractByHash"
	case item.StoredContractByName != nil:
		return "StoredContractByName"
	case item.StoredVersionedContractByHash != nil:
		return "StoredVersionedContractByHash"
	case item.StoredVersionedContractByName != nil:
		return "StoredVersionedContractByName"
	case item.Transfer != nil:
		return "Transfer"
	default:
		return ""
	}
}

func (item ExecutableDeployItem) Args() RuntimeArgs {
	switch {
	case item.ModuleBytes != nil:
		return item.ModuleBytes.Args
	case item.StoredContractByHash != nil:
		return item.StoredContractByHash.Args
	case item.StoredContractByName != nil:
		return item.StoredContractByName.Args
	case item.StoredVersionedContractByHash != nil:
		return item.StoredVersionedContractByHash.Args
	case item.StoredVersionedContractByName != nil:
		return item.StoredVersionedContractByName.Args
	case item.Transfer != nil:
		return item.Transfer.Args
	default:
		return nil
	}
}

func (item ExecutableDeployItem) Bytes() ([]byte, error) {
	if n := item.variants(); n != 1 {
		return nil, errors.Errorf("executable deploy item must have exactly one variant, has %d", n)
	}

	var out []byte

	switch {
	case item.ModuleBytes != nil:
		out = append(out, itemModuleBytes)
		out = appendBytes(out, item.ModuleBytes.ModuleBytes)
		out = append(out, item.ModuleBytes.Args.Bytes()...)

	case item.StoredContractByHash != nil:
		v := item.StoredContractByHash
		out = append(out, itemStoredContractByHash)
		out = append(out, v.Hash[:]...)
		out = appendString(out, v.EntryPoint)
		out = append(out, v.Args.Bytes()...)

	case item.StoredContractByName != nil:
		v := item.StoredContractByName
		out = append(out, itemStoredContractByName)
		out = appendString(out, v.Name)
		out = appendString(out, v.EntryPoint)
		out = append(out, v.Args.Bytes()...)

	case item.StoredVersionedContractByHash != nil:
		v := item.StoredVersionedContractByHash
		out = append(out, itemStoredVersionedContractByHash)
		out = append(out, v.Hash[:]...)
		out = appendOptionU32(out, v.Version)
		out = appendString(out, v.EntryPoint)
		out = append(out, v.Args.Bytes()...)

	case item.StoredVersionedContractByName != nil:
		v := item.StoredVersionedContractByName
		out = append(out, itemStoredVersionedContractByName)
		out = appendString(out, v.Name)
		out = appendOptionU32(out, v.Version)
		out = appendString(out, v.EntryPoint)
		out = append(out, v.Args.Bytes()...)

	case item.Transfer != nil:
		out = append(out, itemTransfer)
		out = append(out, item.Transfer.Args.Bytes()...)
	}

	return out, nil
}

func appendOptionU32(buf []byte, v *uint32) []byte {
	if v == nil {
		return append(buf, 0)
	}

	buf = append(buf, 1)
	return appendU32(buf, *v)
}
