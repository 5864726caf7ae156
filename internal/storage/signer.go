package storage

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
)

// NewCloudFrontSigner builds a canned-policy URL signer from a PEM encoded
// RSA key. Keys passed through env vars often carry literal "\n" sequences.
func NewCloudFrontSigner(keyPairID, privateKeyPEM string) (*sign.URLSigner, error) {
	if keyPairID == "" || privateKeyPEM == "" {
		return nil, errors.New("storage: cloudfront key pair id and private key are required")
	}
	pemText := strings.ReplaceAll(privateKeyPEM, `\n`, "\n")
	key, err := sign.LoadPEMPrivKey(strings.NewReader(pemText))
	if err != nil {
		return nil, err
	}
	return sign.NewURLSigner(keyPairID, key), nil
}
