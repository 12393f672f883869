package casper

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"
)

const sampleDeployJSON = `{
  "deploy": {
    "hash": "f5941df6161f8118e8035521ced260ec3689940dab4a4f7a70f2c5ca7199508c",
    "header": {
      "account": "0181dd6e2f7ed815c0246f210aa169882f8e821d874a43f817f77a795147beed61",
      "timestamp": "2021-06-24T21:33:44.277Z",
      "ttl": "30m",
      "gas_price": 1,
      "body_hash": "392764d6905dd26b6a808c48e41cc35175ce41f34e0f0e75772081b80bb50aa0",
      "dependencies": [],
      "chain_name": "casper"
    },
    "payment": {
      "ModuleBytes": {
        "module_bytes": "",
        "args": [["amount", {"cl_type": "U512", "bytes": "040065cd1d", "parsed": "500000000"}]]
      }
    },
    "session": {
      "StoredContractByHash": {
        "hash": "73c9589d8bebbf6dc853707c5e157145c2d8ac8765f93ba3342a7cc2908b2346",
        "entry_point": "undelegate",
        "args": [
          ["delegator", {"cl_type": "PublicKey", "bytes": "0181dd6e2f7ed815c0246f210aa169882f8e821d874a43f817f77a795147beed61", "parsed": null}],
          ["validator", {"cl_type": "PublicKey", "bytes": "0190c434129ecbaeb34d33185ab6bf97c3c493fc50121a56a9ed8c4c52855b5ac1", "parsed": null}],
          ["amount", {"cl_type": "U512", "bytes": "0500e40b5402", "parsed": "10000000000"}]
        ]
      }
    },
    "approvals": [
      {
        "signer": "0181dd6e2f7ed815c0246f210aa169882f8e821d874a43f817f77a795147beed61",
        "signature": "019ba1f298654794c85d567d46f87b06e8b8c4c4e94a6bf53f3dc81ede1f1f6fb9f6070be904366d0eaeda1a2fdbe2326d1334c377f3af85338e6cfd467834ff0d"
      }
    ]
  }
}`

func testKeyPair(t *testing.T, seedByte byte) *KeyPair {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}

	return NewKeyPair(ed25519.NewKeyFromSeed(seed))
}

func TestU512Encoding(t *testing.T) {
	t.Run("matches node encoding for payment amounts", func(t *testing.T) {
		v, err := NewU512(big.NewInt(500_000_000))
		require.NoError(t, err)
		require.Equal(t, "040065cd1d", hex.EncodeToString(v.Bytes))

		v, err = NewU512(big.NewInt(10_000_000_000))
		require.NoError(t, err)
		require.Equal(t, "0500e40b5402", hex.EncodeToString(v.Bytes))
	})

	t.Run("encodes zero as a single length byte", func(t *testing.T) {
		v, err := NewU512(big.NewInt(0))
		require.NoError(t, err)
		require.Equal(t, []byte{0}, v.Bytes)
	})

	t.Run("decodes back to the same value", func(t *testing.T) {
		amount, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
		require.True(t, ok)

		v, err := NewU512(amount)
		require.NoError(t, err)

		decoded, err := v.BigInt()
		require.NoError(t, err)
		require.Equal(t, 0, amount.Cmp(decoded))
	})

	t.Run("rejects truncated bytes", func(t *testing.T) {
		v := CLValue{Type: SimpleType(TagU512), Bytes: []byte{4, 0, 1}}

		_, err := v.BigInt()
		require.Error(t, err)
	})
}

func TestCLTypeJSON(t *testing.T) {
	cases := []string{
		`"U512"`,
		`"PublicKey"`,
		`{"ByteArray":32}`,
		`{"Option":"U64"}`,
		`{"List":{"Option":"String"}}`,
		`{"Map":{"key":"String","value":"U512"}}`,
		`{"Result":{"err":"U32","ok":"Unit"}}`,
		`{"Tuple2":["U8","String"]}`,
	}

	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			var typ CLType
			require.NoError(t, json.Unmarshal([]byte(c), &typ))

			out, err := json.Marshal(typ)
			require.NoError(t, err)
			require.JSONEq(t, c, string(out))
		})
	}

	t.Run("rejects unknown types", func(t *testing.T) {
		var typ CLType
		require.Error(t, json.Unmarshal([]byte(`"U1024"`), &typ))
	})

	t.Run("encodes nested type bytes", func(t *testing.T) {
		require.Equal(t, []byte{byte(TagOption), byte(TagU64)}, OptionOf(SimpleType(TagU64)).Bytes())
		require.Equal(t, []byte{byte(TagByteArray), 32, 0, 0, 0}, ByteArrayOf(32).Bytes())
	})
}

func TestRuntimeArgs(t *testing.T) {
	first := NewU64(1)
	second := NewU64(2)
	args := RuntimeArgs{
		{Name: "amount", Value: first},
		{Name: "amount", Value: second},
	}

	t.Run("first match wins", func(t *testing.T) {
		v, ok := args.Get("amount")
		require.True(t, ok)
		require.Equal(t, first, v)
	})

	t.Run("missing argument is reported", func(t *testing.T) {
		_, ok := args.Get("target")
		require.False(t, ok)

		_, err := args.BigInt("target")
		require.ErrorIs(t, err, ErrArgNotFound)
	})

	t.Run("survives a json round trip in order", func(t *testing.T) {
		data, err := json.Marshal(args)
		require.NoError(t, err)

		var decoded RuntimeArgs
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Len(t, decoded, 2)
		require.Equal(t, args.Bytes(), decoded.Bytes())

		v, err := decoded.BigInt("amount")
		require.NoError(t, err)
		require.Equal(t, int64(1), v.Int64())
	})
}

func TestParseDeployJSON(t *testing.T) {
	d, err := ParseDeployJSON([]byte(sampleDeployJSON))
	require.NoError(t, err)

	require.Equal(t, "f5941df6161f8118e8035521ced260ec3689940dab4a4f7a70f2c5ca7199508c", d.Hash.String())
	require.Equal(t, "casper", d.Header.ChainName)
	require.Equal(t, 30*time.Minute, d.Header.TTL.Duration())
	require.Equal(t, "2021-06-24T21:33:44.277Z", d.Header.Timestamp.String())
	require.Equal(t, "StoredContractByHash", d.Session.Kind())
	require.Equal(t, UndelegateEntryPoint, d.Session.StoredContractByHash.EntryPoint)
	require.Equal(t, "0181dd6e2f7ed815c0246f210aa169882f8e821d874a43f817f77a795147beed61", d.Signer().Hex())

	amount, err := d.Session.Args().BigInt("amount")
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000_000), amount.Int64())

	payment, err := d.Payment.Args().BigInt("amount")
	require.NoError(t, err)
	require.Equal(t, int64(500_000_000), payment.Int64())

	t.Run("accepts an unwrapped deploy", func(t *testing.T) {
		wrapped, err := d.DeployJSON()
		require.NoError(t, err)

		var envelope struct {
			Deploy json.RawMessage `json:"deploy"`
		}
		require.NoError(t, json.Unmarshal(wrapped, &envelope))

		bare, err := ParseDeployJSON(envelope.Deploy)
		require.NoError(t, err)
		require.Equal(t, d.Hash, bare.Hash)
	})
}

func TestTransferDeploy(t *testing.T) {
	kp := testKeyPair(t, 1)
	target := testKeyPair(t, 2).PublicKey

	params := DeployParams{
		ChainName: "casper-test",
		GasPrice:  1,
		TTL:       TTL(6 * time.Hour),
		Timestamp: TimestampFromMillis(1_624_570_424_277),
	}

	d, err := NewTransfer(params, kp, big.NewInt(2_500_000_000), target, 7, big.NewInt(10_000))
	require.NoError(t, err)

	t.Run("is signed and valid", func(t *testing.T) {
		require.NoError(t, d.Validate())
		require.Equal(t, kp.PublicKey.Hex(), d.Header.Account.Hex())
		require.Len(t, d.Approvals, 1)
	})

	t.Run("targets the recipient account hash", func(t *testing.T) {
		v, ok := d.Session.Args().Get("target")
		require.True(t, ok)

		accountHash := target.AccountHash()
		require.Equal(t, accountHash[:], v.Bytes)
		require.Equal(t, ByteArrayOf(32), v.Type)
	})

	t.Run("carries the transfer id as an option", func(t *testing.T) {
		v, ok := d.Session.Args().Get("id")
		require.True(t, ok)
		require.Equal(t, append([]byte{1}, appendU64(nil, 7)...), v.Bytes)
	})

	t.Run("hash is stable across a json round trip", func(t *testing.T) {
		data, err := d.DeployJSON()
		require.NoError(t, err)

		parsed, err := ParseDeployJSON(data)
		require.NoError(t, err)
		require.Equal(t, d.Hash, parsed.Hash)
		require.NoError(t, parsed.Validate())
	})

	t.Run("tampered header fails validation", func(t *testing.T) {
		data, err := d.DeployJSON()
		require.NoError(t, err)

		tampered, err := ParseDeployJSON(data)
		require.NoError(t, err)
		tampered.Header.GasPrice = 2

		require.Error(t, tampered.Validate())
	})

	t.Run("tampered session fails validation", func(t *testing.T) {
		data, err := d.DeployJSON()
		require.NoError(t, err)

		tampered, err := ParseDeployJSON(data)
		require.NoError(t, err)
		tampered.Session.Transfer.Args[0].Value.Bytes = []byte{1, 9}

		require.Error(t, tampered.Validate())
	})
}

func TestUndelegateDeploy(t *testing.T) {
	kp := testKeyPair(t, 3)
	validator := testKeyPair(t, 4).PublicKey

	contract, err := ParseHash("ccb576d6ce6dec84a551e48f0d0b7af89ddba44c7390b690036257a04a3ae9ea")
	require.NoError(t, err)

	params := DeployParams{
		ChainName: "casper",
		GasPrice:  1,
		TTL:       TTL(time.Hour),
		Timestamp: NewTimestamp(time.Now()),
	}

	d, err := NewUndelegate(params, kp, contract, validator, big.NewInt(1_000_000_000_000), big.NewInt(500_000_000))
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	args := d.Session.Args()
	delegator, ok := args.Get("delegator")
	require.True(t, ok)
	require.Equal(t, kp.PublicKey.Bytes(), delegator.Bytes)

	v, ok := args.Get("validator")
	require.True(t, ok)
	require.Equal(t, validator.Bytes(), v.Bytes)

	amount, err := args.BigInt("amount")
	require.NoError(t, err)
	require.Equal(t, "1000.0", FormatMotes(amount))
}

func TestTTL(t *testing.T) {
	t.Run("formats in humantime notation", func(t *testing.T) {
		require.Equal(t, "6h", TTL(6*time.Hour).String())
		require.Equal(t, "30m", TTL(30*time.Minute).String())
		require.Equal(t, "1day", TTL(24*time.Hour).String())
		require.Equal(t, "2days 1h 1m 1s 1ms", TTL(49*time.Hour+time.Minute+time.Second+time.Millisecond).String())
	})

	t.Run("parses what it formats", func(t *testing.T) {
		for _, d := range []time.Duration{time.Hour, 90 * time.Minute, 36 * time.Hour, 1500 * time.Millisecond} {
			parsed, err := ParseTTL(TTL(d).String())
			require.NoError(t, err)
			require.Equal(t, d, parsed.Duration())
		}
	})

	t.Run("accepts compact and long units", func(t *testing.T) {
		parsed, err := ParseTTL("1h30m")
		require.NoError(t, err)
		require.Equal(t, 90*time.Minute, parsed.Duration())

		parsed, err = ParseTTL("2 hours")
		require.NoError(t, err)
		require.Equal(t, 2*time.Hour, parsed.Duration())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseTTL("soon")
		require.Error(t, err)

		_, err = ParseTTL("10")
		require.Error(t, err)

		_, err = ParseTTL("10 fortnights")
		require.Error(t, err)
	})
}

func TestFormatMotes(t *testing.T) {
	cases := map[int64]string{
		0:                 "0.0",
		1:                 "0.000000001",
		500_000_000:       "0.5",
		1_000_000_000:     "1.0",
		1_000_000_000_000: "1000.0",
		1_234_500_000:     "1.2345",
	}

	for motes, want := range cases {
		require.Equal(t, want, FormatMotes(big.NewInt(motes)))
	}

	_, err := ParseMotes("-5")
	require.Error(t, err)

	_, err = ParseMotes("1.5")
	require.Error(t, err)
}

func TestLoadKeyPair(t *testing.T) {
	dir := t.TempDir()
	kp := testKeyPair(t, 9)

	privDER, err := x509.MarshalPKCS8PrivateKey(kp.edKey)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(ed25519.PublicKey(kp.PublicKey.Raw))
	require.NoError(t, err)

	privPath := filepath.Join(dir, "secret_key.pem")
	pubPath := filepath.Join(dir, "public_key.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	t.Run("loads matching key files", func(t *testing.T) {
		loaded, err := LoadKeyPair(pubPath, privPath)
		require.NoError(t, err)
		require.Equal(t, kp.PublicKey.Hex(), loaded.PublicKey.Hex())
	})

	t.Run("derives the public key when its file is missing", func(t *testing.T) {
		loaded, err := LoadKeyPair(filepath.Join(dir, "missing.pem"), privPath)
		require.NoError(t, err)
		require.Equal(t, kp.PublicKey.Hex(), loaded.PublicKey.Hex())
	})

	t.Run("rejects a mismatching public key", func(t *testing.T) {
		other := testKeyPair(t, 10)
		otherDER, err := x509.MarshalPKIXPublicKey(ed25519.PublicKey(other.PublicKey.Raw))
		require.NoError(t, err)

		otherPath := filepath.Join(dir, "other.pem")
		require.NoError(t, os.WriteFile(otherPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: otherDER}), 0o600))

		_, err = LoadKeyPair(otherPath, privPath)
		require.Error(t, err)
	})
}

func TestPublicKey(t *testing.T) {
	t.Run("parses ed25519 and secp256k1 keys", func(t *testing.T) {
		k, err := ParsePublicKey("0190c434129ecbaeb34d33185ab6bf97c3c493fc50121a56a9ed8c4c52855b5ac1")
		require.NoError(t, err)
		require.Equal(t, AlgorithmEd25519, k.Algorithm)

		k, err = ParsePublicKey("02" + "03" + hex.EncodeToString(make([]byte, 32)))
		require.NoError(t, err)
		require.Equal(t, AlgorithmSecp256k1, k.Algorithm)
	})

	t.Run("rejects bad lengths and tags", func(t *testing.T) {
		_, err := ParsePublicKey("01abcd")
		require.Error(t, err)

		_, err = ParsePublicKey("05" + hex.EncodeToString(make([]byte, 32)))
		require.Error(t, err)
	})

	t.Run("account hash depends on the algorithm", func(t *testing.T) {
		raw := make([]byte, 32)
		ed := PublicKey{Algorithm: AlgorithmEd25519, Raw: raw}
		other := PublicKey{Algorithm: AlgorithmSecp256k1, Raw: raw}

		require.NotEqual(t, ed.AccountHash(), other.AccountHash())
		require.Equal(t, blake2b256([]byte("ed25519\x00"), raw), ed.AccountHash())
	})
}

func testSecp256k1Key(seedByte byte) *secp256k1.PrivateKey {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = seedByte
	}

	return secp256k1.PrivKeyFromBytes(seed)
}

func TestSecp256k1Deploy(t *testing.T) {
	priv := testSecp256k1Key(0x11)
	kp := NewSecp256k1KeyPair(priv)
	target := testKeyPair(t, 2).PublicKey

	params := DeployParams{
		ChainName: "casper",
		GasPrice:  1,
		TTL:       TTL(30 * time.Minute),
		Timestamp: TimestampFromMillis(1_624_570_424_277),
	}

	t.Run("accepts a compact ecdsa approval over sha256 of the hash", func(t *testing.T) {
		amount, err := NewU512(big.NewInt(2_500_000_000))
		require.NoError(t, err)
		payment, err := NewU512(big.NewInt(10_000))
		require.NoError(t, err)

		accountHash := target.AccountHash()
		session := ExecutableDeployItem{Transfer: &TransferItem{Args: RuntimeArgs{
			{Name: "amount", Value: amount},
			{Name: "target", Value: NewByteArray(accountHash[:])},
		}}}

		p := params
		p.Account = PublicKey{Algorithm: AlgorithmSecp256k1, Raw: priv.PubKey().SerializeCompressed()}

		d, err := MakeDeploy(p, session, StandardPayment(payment))
		require.NoError(t, err)

		digest := sha256.Sum256(d.Hash[:])
		compact := ecdsa.SignCompact(priv, digest[:], true)
		d.Approvals = append(d.Approvals, Approval{
			Signer:    p.Account,
			Signature: append([]byte{byte(AlgorithmSecp256k1)}, compact[1:]...),
		})

		data, err := d.DeployJSON()
		require.NoError(t, err)

		parsed, err := ParseDeployJSON(data)
		require.NoError(t, err)
		require.NoError(t, parsed.Validate())
	})

	d, err := NewTransfer(params, kp, big.NewInt(2_500_000_000), target, 7, big.NewInt(10_000))
	require.NoError(t, err)

	t.Run("builders sign with secp256k1 keys", func(t *testing.T) {
		require.Equal(t, "02", d.Header.Account.Hex()[:2])
		require.Len(t, d.Approvals[0].Signature, 65)
		require.NoError(t, d.Validate())
	})

	t.Run("rejects a signature by another key", func(t *testing.T) {
		other := NewSecp256k1KeyPair(testSecp256k1Key(0x22))

		forged := *d
		forged.Approvals = []Approval{{Signer: kp.PublicKey, Signature: other.Sign(d.Hash[:])}}
		require.Error(t, forged.Validate())
	})

	t.Run("rejects a truncated signature", func(t *testing.T) {
		truncated := *d
		truncated.Approvals = []Approval{{Signer: kp.PublicKey, Signature: d.Approvals[0].Signature[:40]}}
		require.Error(t, truncated.Validate())
	})
}

func TestLoadSecp256k1KeyPair(t *testing.T) {
	dir := t.TempDir()
	priv := testSecp256k1Key(0x33)

	curve, err := asn1.Marshal(oidSecp256k1)
	require.NoError(t, err)

	privDER, err := asn1.Marshal(sec1PrivateKey{
		Version:       1,
		PrivateKey:    priv.Serialize(),
		NamedCurveOID: oidSecp256k1,
	})
	require.NoError(t, err)

	uncompressed := priv.PubKey().SerializeUncompressed()
	pubDER, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: oidPublicKeyECDSA, Parameters: asn1.RawValue{FullBytes: curve}},
		PublicKey: asn1.BitString{Bytes: uncompressed, BitLength: len(uncompressed) * 8},
	})
	require.NoError(t, err)

	privPath := filepath.Join(dir, "secret_key.pem")
	pubPath := filepath.Join(dir, "public_key.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	t.Run("loads SEC1 and PKIX key files", func(t *testing.T) {
		kp, err := LoadKeyPair(pubPath, privPath)
		require.NoError(t, err)
		require.Equal(t, AlgorithmSecp256k1, kp.PublicKey.Algorithm)
		require.Equal(t, priv.PubKey().SerializeCompressed(), kp.PublicKey.Raw)

		sig := kp.Sign([]byte("message"))
		require.NoError(t, kp.PublicKey.Verify([]byte("message"), sig))
		require.Error(t, kp.PublicKey.Verify([]byte("other"), sig))
	})

	t.Run("rejects an ed25519 public key file", func(t *testing.T) {
		edDER, err := x509.MarshalPKIXPublicKey(ed25519.PublicKey(testKeyPair(t, 9).PublicKey.Raw))
		require.NoError(t, err)

		edPath := filepath.Join(dir, "ed25519.pem")
		require.NoError(t, os.WriteFile(edPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: edDER}), 0o600))

		_, err = LoadKeyPair(edPath, privPath)
		require.Error(t, err)
	})
}
