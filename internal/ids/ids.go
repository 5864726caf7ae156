package ids

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	organizationCodeLen      = 6
	organizationCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier used for request ids.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// OrganizationCode returns a short upper-case base36 code for a new organization.
func OrganizationCode() (string, error) {
	max := big.NewInt(int64(len(organizationCodeAlphabet)))
	buf := make([]byte, organizationCodeLen)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = organizationCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
