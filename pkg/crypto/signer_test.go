package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hftgate/pkg/util"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
	if len(signer.PrivateKeyHex()) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(signer.PrivateKeyHex()))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key: %v", err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("expected error for bad hex")
	}
}

func TestSignTextRecover(t *testing.T) {
	signer, _ := GenerateKey()
	msg := []byte("hello gateway")

	sig, err := signer.SignText(msg)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	got, err := RecoverAddress(accounts.TextHash(msg), sig)
	if err != nil {
		t.Fatalf("failed to recover: %v", err)
	}
	if got != signer.Address().Hex() {
		t.Errorf("recovered %s, want %s", got, signer.Address().Hex())
	}

	// wallets send V as 27/28
	wallet := append([]byte(nil), sig...)
	wallet[64] += 27
	got, err = RecoverAddress(accounts.TextHash(msg), wallet)
	if err != nil || got != signer.Address().Hex() {
		t.Errorf("wallet-form V: got %s, %v", got, err)
	}

	if _, err := RecoverAddress(accounts.TextHash(msg), sig[:10]); err == nil {
		t.Error("short signature should fail")
	}
	if _, err := RecoverAddress([]byte("short"), sig); err == nil {
		t.Error("short hash should fail")
	}
}

func TestEIP55MatchesGoEthereum(t *testing.T) {
	for i := 0; i < 20; i++ {
		signer, _ := GenerateKey()
		want := signer.Address().Hex()
		if got := EIP55(signer.Address().Bytes()); got != want {
			t.Fatalf("EIP55 = %s, want %s", got, want)
		}
		got, ok := ChecksumAddress(strings.ToLower(want))
		if !ok || got != want {
			t.Fatalf("ChecksumAddress = %s %v, want %s", got, ok, want)
		}
	}

	for _, bad := range []string{"", "0x1234", "0xzz00000000000000000000000000000000000000"} {
		if _, ok := ChecksumAddress(bad); ok {
			t.Errorf("ChecksumAddress(%q) should fail", bad)
		}
	}
	if AddressFromUncompressedPub([]byte{1, 2, 3}) != "" {
		t.Error("malformed pubkey should give empty address")
	}
}

func TestVerifyToken(t *testing.T) {
	signer, _ := GenerateKey()
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	v := NewVerifier(time.Hour, clock)

	token, err := signer.AuthToken(clock.Now())
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	account, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if account != signer.Address().Hex() {
		t.Errorf("account = %s, want %s", account, signer.Address().Hex())
	}

	clock.Advance(2 * time.Hour)
	if _, err := v.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	future, _ := signer.AuthToken(clock.Now().Add(10 * time.Minute))
	if _, err := v.Verify(future); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("future token: expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	v := NewVerifier(time.Hour, nil)
	for _, tok := range []string{"", "abc", "123", "x.00", "1700000000.zz", "1700000000.0011"} {
		if _, err := v.Verify(tok); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("Verify(%q) = %v, want ErrMalformedToken", tok, err)
		}
	}
}

func TestTokenIsBoundToTimestamp(t *testing.T) {
	signer, _ := GenerateKey()
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	v := NewVerifier(time.Hour, clock)

	token, _ := signer.AuthToken(clock.Now())
	_, sig, _ := strings.Cut(token, ".")
	// Reusing the signature with a fresher timestamp resolves to some other account.
	forged := "1700000001." + sig
	account, err := v.Verify(forged)
	if err == nil && account == signer.Address().Hex() {
		t.Error("signature must not verify for a different timestamp")
	}
}
