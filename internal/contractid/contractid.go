// Package contractid derives deterministic contract identifiers the way Soroban does:
// sha256 over the XDR HashIdPreimage of (network id, deployer address, salt).
package contractid

import (
	"crypto/sha256"
	"fmt"

	"implregistry/internal/models"

	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"
)

// Derive returns the address a contract created by deployer with salt receives on the
// network identified by networkPassphrase. The result depends on nothing else.
func Derive(networkPassphrase string, deployer models.Address, salt [32]byte) (models.Address, error) {
	if deployer.IsZero() {
		return models.Address{}, fmt.Errorf("%w: zero deployer", models.ErrInvalidAddress)
	}

	from, err := scAddress(deployer)
	if err != nil {
		return models.Address{}, err
	}

	preimage := xdr.HashIdPreimage{
		Type: xdr.EnvelopeTypeEnvelopeTypeContractId,
		ContractId: &xdr.HashIdPreimageContractId{
			NetworkId: xdr.Hash(network.ID(networkPassphrase)),
			ContractIdPreimage: xdr.ContractIdPreimage{
				Type: xdr.ContractIdPreimageTypeContractIdPreimageFromAddress,
				FromAddress: &xdr.ContractIdPreimageFromAddress{
					Address: from,
					Salt:    xdr.Uint256(salt),
				},
			},
		},
	}

	raw, err := preimage.MarshalBinary()
	if err != nil {
		return models.Address{}, fmt.Errorf("failed to marshal contract id preimage: %w", err)
	}

	return models.ContractAddress(sha256.Sum256(raw)), nil
}

// NamedSalt turns a human-readable deployment label into a salt
func NamedSalt(label string) [32]byte {
	return sha256.Sum256([]byte(label))
}

func scAddress(a models.Address) (xdr.ScAddress, error) {
	if a.IsContract() {
		id := xdr.ContractId(a.Key)
		return xdr.ScAddress{
			Type:       xdr.ScAddressTypeScAddressTypeContract,
			ContractId: &id,
		}, nil
	}

	key := xdr.Uint256(a.Key)
	accountID := xdr.AccountId(xdr.PublicKey{
		Type:    xdr.PublicKeyTypePublicKeyTypeEd25519,
		Ed25519: &key,
	})
	return xdr.ScAddress{
		Type:      xdr.ScAddressTypeScAddressTypeAccount,
		AccountId: &accountID,
	}, nil
}
