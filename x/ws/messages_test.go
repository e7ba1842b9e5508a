package ws

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hyli-org/degen-party/x/contract"
)

func signedEnvelope(t *testing.T) (AuthenticatedMessage, contract.Identity, uuid.UUID) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	id := uuid.New()
	signed := id.String() + ":PlaceBet"
	digest := sha256.Sum256([]byte(signed))
	sig, err := ethcrypto.Sign(digest[:], key)
	require.NoError(t, err)

	pub := hex.EncodeToString(ethcrypto.CompressPubkey(&key.PublicKey))
	env := AuthenticatedMessage{
		Message:    json.RawMessage(`{"game":"board"}`),
		Signature:  hex.EncodeToString(sig[:64]),
		PublicKey:  pub,
		MessageID:  id.String(),
		SignedData: signed,
	}
	return env, contract.NewIdentity(pub, "secp256k1"), id
}

func TestVerifyAcceptsValidEnvelope(t *testing.T) {
	t.Parallel()
	env, wantIdentity, wantID := signedEnvelope(t)

	identity, id, err := env.Verify()
	require.NoError(t, err)
	require.Equal(t, wantIdentity, identity)
	require.Equal(t, wantID, id)
}

func TestVerifyRejectsTamperedEnvelopes(t *testing.T) {
	t.Parallel()

	t.Run("bad message id", func(t *testing.T) {
		t.Parallel()
		env, _, _ := signedEnvelope(t)
		env.MessageID = "not-a-uuid"
		_, _, err := env.Verify()
		require.ErrorIs(t, err, contract.ErrValidation)
	})

	t.Run("signed data not bound to message id", func(t *testing.T) {
		t.Parallel()
		env, _, _ := signedEnvelope(t)
		env.MessageID = uuid.NewString()
		_, _, err := env.Verify()
		require.ErrorIs(t, err, contract.ErrValidation)
	})

	t.Run("wrong signature", func(t *testing.T) {
		t.Parallel()
		env, _, _ := signedEnvelope(t)
		other, _, _ := signedEnvelope(t)
		env.Signature = other.Signature
		_, _, err := env.Verify()
		require.ErrorIs(t, err, contract.ErrValidation)
	})

	t.Run("garbage hex", func(t *testing.T) {
		t.Parallel()
		env, _, _ := signedEnvelope(t)
		env.PublicKey = "zz"
		_, _, err := env.Verify()
		require.ErrorIs(t, err, contract.ErrValidation)
	})
}
