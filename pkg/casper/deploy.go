package casper

import (
	"encoding/json"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

type Header struct {
	Account      PublicKey `json:"account"`
	Timestamp    Timestamp `json:"timestamp"`
	TTL          TTL       `json:"ttl"`
	GasPrice     uint64    `json:"gas_price"`
	BodyHash     Hash      `json:"body_hash"`
	Dependencies []Hash    `json:"dependencies"`
	ChainName    string    `json:"chain_name"`
}

func (h Header) Bytes() []byte {
	out := h.Account.Bytes()
	out = appendU64(out, h.Timestamp.Millis())
	out = appendU64(out, h.TTL.Millis())
	out = appendU64(out, h.GasPrice)
	out = append(out, h.BodyHash[:]...)

	out = appendU32(out, uint32(len(h.Dependencies)))
	for _, dep := range h.Dependencies {
		out = append(out, dep[:]...)
	}

	return appendString(out, h.ChainName)
}

type Approval struct {
	Signer    PublicKey `json:"signer"`
	Signature HexBytes  `json:"signature"`
}

type Deploy struct {
	Hash      Hash                 `json:"hash"`
	Header    Header               `json:"header"`
	Payment   ExecutableDeployItem `json:"payment"`
	Session   ExecutableDeployItem `json:"session"`
	Approvals []Approval           `json:"approvals"`
}

type DeployParams struct {
	Account      PublicKey
	ChainName    string
	GasPrice     uint64
	TTL          TTL
	Timestamp    Timestamp
	Dependencies []Hash
}

// MakeDeploy assembles an unsigned deploy and computes its body and deploy
// hashes.
func MakeDeploy(params DeployParams, session, payment ExecutableDeployItem) (*Deploy, error) {
	if params.Account.IsZero() {
		return nil, errors.New("deploy account is required")
	}
	if params.ChainName == "" {
		return nil, errors.New("chain name is required")
	}

	body, err := bodyHash(payment, session)
	if err != nil {
		return nil, err
	}

	deps := params.Dependencies
	if deps == nil {
		deps = []Hash{}
	}

	header := Header{
		Account:      params.Account,
		Timestamp:    params.Timestamp,
		TTL:          params.TTL,
		GasPrice:     params.GasPrice,
		BodyHash:     body,
		Dependencies: deps,
		ChainName:    params.ChainName,
	}

	return &Deploy{
		Hash:      blake2b256(header.Bytes()),
		Header:    header,
		Payment:   payment,
		Session:   session,
		Approvals: []Approval{},
	}, nil
}

func bodyHash(payment, session ExecutableDeployItem) (Hash, error) {
	paymentBytes, err := payment.Bytes()
	if err != nil {
		return Hash{}, errors.Wrap(err, "payment")
	}

	sessionBytes, err := session.Bytes()
	if err != nil {
		return Hash{}, errors.Wrap(err, "session")
	}

	return blake2b256(paymentBytes, sessionBytes), nil
}

// Sign appends an approval by kp over the deploy hash.
func (d *Deploy) Sign(kp *KeyPair) {
	d.Approvals = append(d.Approvals, Approval{
		Signer:    kp.PublicKey,
		Signature: kp.Sign(d.Hash[:]),
	})
}

// Validate recomputes both hashes and verifies every approval.
func (d *Deploy) Validate() error {
	body, err := bodyHash(d.Payment, d.Session)
	if err != nil {
		return err
	}
	if body != d.Header.BodyHash {
		return errors.Errorf("body hash mismatch: header has %s, computed %s", d.Header.BodyHash, body)
	}

	if hash := blake2b256(d.Header.Bytes()); hash != d.Hash {
		return errors.Errorf("deploy hash mismatch: deploy has %s, computed %s", d.Hash, hash)
	}

	if len(d.Approvals) == 0 {
		return errors.New("deploy has no approvals")
	}

	for i, approval := range d.Approvals {
		if err := approval.Signer.Verify(d.Hash[:], approval.Signature); err != nil {
			return errors.Wrapf(err, "approval %d by %s", i, approval.Signer)
		}
	}

	return nil
}

// Signer is the first approver, or the header account for unsigned deploys.
func (d *Deploy) Signer() PublicKey {
	if len(d.Approvals) > 0 {
		return d.Approvals[0].Signer
	}

	return d.Header.Account
}

// ParseDeployJSON accepts either a bare deploy object or one wrapped as
// {"deploy": {...}}.
func ParseDeployJSON(data []byte) (*Deploy, error) {
	if inner, vt, _, err := jsonparser.Get(data, "deploy"); err == nil && vt == jsonparser.Object {
		data = inner
	}

	d := new(Deploy)
	if err := json.Unmarshal(data, d); err != nil {
		return nil, errors.Wrap(err, "invalid deploy json")
	}

	return d, nil
}

// DeployJSON returns the {"deploy": {...}} form accepted by account_put_deploy.
func (d *Deploy) DeployJSON() ([]byte, error) {
	return json.Marshal(struct {
		Deploy *Deploy `json:"deploy"`
	}{Deploy: d})
}
