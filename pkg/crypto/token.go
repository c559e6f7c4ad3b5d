package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"

	"github.com/uhyunpark/hftgate/pkg/util"
)

var (
	ErrMalformedToken = errors.New("crypto: malformed auth token")
	ErrBadSignature   = errors.New("crypto: bad auth signature")
	ErrTokenExpired   = errors.New("crypto: auth token expired")
)

// allowed clock drift for tokens stamped in the future
const maxSkew = time.Minute

// AuthMessage is the text a client signs: "hftgate-auth:<unix seconds>".
func AuthMessage(ts int64) []byte {
	return []byte("hftgate-auth:" + strconv.FormatInt(ts, 10))
}

// AuthToken returns "<unix seconds>.<hex signature>" for now.
func (s *Signer) AuthToken(now time.Time) (string, error) {
	ts := now.Unix()
	sig, err := s.SignText(AuthMessage(ts))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%s", ts, hex.EncodeToString(sig)), nil
}

// Verifier checks auth tokens and resolves them to account ids.
type Verifier struct {
	maxAge time.Duration
	clock  util.Clock
}

func NewVerifier(maxAge time.Duration, clock util.Clock) *Verifier {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Verifier{maxAge: maxAge, clock: clock}
}

// Verify returns the EIP-55 address of the token's signer.
func (v *Verifier) Verify(token string) (string, error) {
	tsPart, sigPart, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok {
		return "", ErrMalformedToken
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: timestamp: %w", ErrMalformedToken, err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigPart, "0x"))
	if err != nil || len(sig) != 65 {
		return "", fmt.Errorf("%w: signature", ErrMalformedToken)
	}

	issued := time.Unix(ts, 0)
	now := v.clock.Now()
	if issued.After(now.Add(maxSkew)) {
		return "", fmt.Errorf("%w: issued in the future", ErrTokenExpired)
	}
	if v.maxAge > 0 && now.Sub(issued) > v.maxAge {
		return "", ErrTokenExpired
	}

	addr, err := RecoverAddress(accounts.TextHash(AuthMessage(ts)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return addr, nil
}
