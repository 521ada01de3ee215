package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/domain"
)

func TestParseDescriptorRejectsEmpty(t *testing.T) {
	require.Error(t, ParseDescriptor("", domain.Mainnet))
	require.Error(t, ParseDescriptor("   ", domain.Mainnet))
}

func TestParseDescriptorRejectsUnknownNetwork(t *testing.T) {
	require.Error(t, ParseDescriptor("wsh(multi(2,a,b))", domain.Network("moonnet")))
}

func TestParseDescriptorRejectsUnbalancedParens(t *testing.T) {
	require.Error(t, ParseDescriptor("wsh(multi(2,a,b)", domain.Mainnet))
}

func TestParseDescriptorRejectsUnsupportedFunction(t *testing.T) {
	require.Error(t, ParseDescriptor("combo(a,b)", domain.Mainnet))
}

func TestParseDescriptorAcceptsKnownFunctions(t *testing.T) {
	for _, d := range []string{
		"wsh(multi(2,a,b))",
		"sh(wpkh(a))",
		"tr(a)",
		"pkh(a)",
	} {
		require.NoError(t, ParseDescriptor(d, domain.Testnet), d)
	}
}

func TestExtractThresholdParsesMultiM(t *testing.T) {
	require.Equal(t, 2, ExtractThreshold("wsh(multi(2,a,b,c))", 3))
	require.Equal(t, 3, ExtractThreshold("wsh(sortedmulti(3,a,b,c,d))", 4))
}

func TestExtractThresholdFallsBackForNonMultiDescriptors(t *testing.T) {
	require.Equal(t, 2, ExtractThreshold("tr(a,{pk(b),pk(c)})", 3))
	require.Equal(t, 1, ExtractThreshold("tr(a)", 1))
	require.Equal(t, 0, ExtractThreshold("tr(a)", 0))
}

func TestStubWalletAddressesAreDeterministicAndDistinct(t *testing.T) {
	f := NewStubFactory(1_000_000)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	a1, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	a2, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)

	w2, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)
	a1Again, err := w2.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	require.Equal(t, a1, a1Again)
}

func TestStubWalletOpenRejectsBadDescriptor(t *testing.T) {
	f := NewStubFactory(0)
	_, err := f.Open("not-a-descriptor", domain.Testnet)
	require.Error(t, err)
}

func TestStubWalletBuildSpendRejectsInsufficientFunds(t *testing.T) {
	f := NewStubFactory(100)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	_, err = w.BuildSpend(context.Background(), "bcrt1qtest", 100000, 1.0)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestStubWalletSignCombineFinalizeLifecycle(t *testing.T) {
	f := NewStubFactory(1_000_000)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	psbt, err := w.BuildSpend(context.Background(), "bcrt1qtest", 50000, 2.0)
	require.NoError(t, err)

	var keyA, keyB [32]byte
	keyA[0] = 1
	keyB[0] = 2

	signedA, err := w.SignPsbt(context.Background(), psbt, keyA, false)
	require.NoError(t, err)
	signedB, err := w.SignPsbt(context.Background(), psbt, keyB, false)
	require.NoError(t, err)

	combined, err := w.CombinePsbts(context.Background(), []Psbt{signedA, signedB})
	require.NoError(t, err)

	raw, txid, err := w.FinalizeExtractTx(context.Background(), combined)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEmpty(t, txid)
}

func TestStubWalletFinalizeRejectsUnsignedPsbt(t *testing.T) {
	f := NewStubFactory(1_000_000)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	psbt, err := w.BuildSpend(context.Background(), "bcrt1qtest", 50000, 2.0)
	require.NoError(t, err)

	_, _, err = w.FinalizeExtractTx(context.Background(), psbt)
	require.Error(t, err)
}

func TestStubWalletFinalizeRejectsNonSpendPsbt(t *testing.T) {
	f := NewStubFactory(1_000_000)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	proof, err := w.BuildProofOfReserve(context.Background(), "hello")
	require.NoError(t, err)
	var key [32]byte
	signed, err := w.SignPsbt(context.Background(), proof, key, false)
	require.NoError(t, err)

	_, _, err = w.FinalizeExtractTx(context.Background(), signed)
	require.Error(t, err)
}

func TestStubWalletProofOfReserveRoundTrip(t *testing.T) {
	f := NewStubFactory(1_000_000)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	proof, err := w.BuildProofOfReserve(context.Background(), "reserves as of today")
	require.NoError(t, err)

	var key [32]byte
	key[0] = 9
	signed, err := w.SignPsbt(context.Background(), proof, key, true)
	require.NoError(t, err)

	require.NoError(t, w.VerifyProofOfReserve(context.Background(), signed, "reserves as of today"))
	require.Error(t, w.VerifyProofOfReserve(context.Background(), signed, "wrong message"))
}

func TestStubWalletVerifyProofOfReserveRejectsUnsigned(t *testing.T) {
	f := NewStubFactory(1_000_000)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	proof, err := w.BuildProofOfReserve(context.Background(), "hello")
	require.NoError(t, err)
	require.Error(t, w.VerifyProofOfReserve(context.Background(), proof, "hello"))
}

func TestStubWalletBalanceReflectsFunds(t *testing.T) {
	f := NewStubFactory(42)
	w, err := f.Open("wsh(multi(2,a,b))", domain.Testnet)
	require.NoError(t, err)

	bal, err := w.Balance(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 42, bal.Confirmed)
	require.Zero(t, bal.Unconfirmed)
}
