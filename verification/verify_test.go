package verification

import (
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/storefront/clients/clientstest"
	"github.com/vitwit/storefront/types"
)

func TestVerify(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	ref := solana.NewWallet().PublicKey()

	tx, err := Verify(clientstest.UnsignedTransfer(t, payer, ref), payer, ref)
	require.NoError(t, err)
	assert.True(t, tx.Message.AccountKeys[0].Equals(payer))
}

func TestVerifyRejectsOtherReference(t *testing.T) {
	payer := solana.NewWallet().PublicKey()

	_, err := Verify(clientstest.UnsignedTransfer(t, payer, solana.NewWallet().PublicKey()), payer, solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidTransaction))
}

func TestVerifyRejectsOtherPayer(t *testing.T) {
	ref := solana.NewWallet().PublicKey()

	_, err := Verify(clientstest.UnsignedTransfer(t, solana.NewWallet().PublicKey(), ref), solana.NewWallet().PublicKey(), ref)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidTransaction))
}

func TestDecodeTransactionGarbage(t *testing.T) {
	_, err := DecodeTransaction("%%%")
	assert.Error(t, err)

	_, err = DecodeTransaction(base64.StdEncoding.EncodeToString([]byte{0}))
	assert.Error(t, err)
}
