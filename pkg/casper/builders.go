package casper

import (
	"math/big"

	"github.com/pkg/errors"
)

const UndelegateEntryPoint = "undelegate"

// NewTransfer builds and signs a native transfer to the account of target.
// The transfer id is always set, as Some(id).
func NewTransfer(params DeployParams, kp *KeyPair, amount *big.Int, target PublicKey, id uint64, payment *big.Int) (*Deploy, error) {
	amountValue, err := NewU512(amount)
	if err != nil {
		return nil, errors.Wrap(err, "transfer amount")
	}

	accountHash := target.AccountHash()
	idValue := NewU64(id)

	session := ExecutableDeployItem{
		Transfer: &TransferItem{
			Args: RuntimeArgs{
				{Name: "amount", Value: amountValue},
				{Name: "target", Value: NewByteArray(accountHash[:])},
				{Name: "id", Value: NewOption(&idValue, SimpleType(TagU64))},
			},
		},
	}

	return makeSignedDeploy(params, kp, session, payment)
}

// NewUndelegate builds and signs a call to the undelegate entry point of the
// staking contract, withdrawing amount delegated by kp to validator.
func NewUndelegate(params DeployParams, kp *KeyPair, contract Hash, validator PublicKey, amount *big.Int, payment *big.Int) (*Deploy, error) {
	amountValue, err := NewU512(amount)
	if err != nil {
		return nil, errors.Wrap(err, "undelegate amount")
	}

	session := ExecutableDeployItem{
		StoredContractByHash: &StoredContractByHash{
			Hash:       contract,
			EntryPoint: UndelegateEntryPoint,
			Args: RuntimeArgs{
				{Name: "delegator", Value: NewPublicKeyValue(kp.PublicKey)},
				{Name: "validator", Value: NewPublicKeyValue(validator)},
				{Name: "amount", Value: amountValue},
			},
		},
	}

	return makeSignedDeploy(params, kp, session, payment)
}

func makeSignedDeploy(params DeployParams, kp *KeyPair, session ExecutableDeployItem, payment *big.Int) (*Deploy, error) {
	paymentValue, err := NewU512(payment)
	if err != nil {
		return nil, errors.Wrap(err, "payment amount")
	}

	params.Account = kp.PublicKey

	d, err := MakeDeploy(params, session, StandardPayment(paymentValue))
	if err != nil {
		return nil, err
	}

	d.Sign(kp)
	return d, nil
}
