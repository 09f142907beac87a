package validation

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var ErrUntrustedSigner = errors.New("receipt signer does not chain to a trusted root")

// nitroRootG1 is the AWS Nitro Enclaves G1 root, a self-signed P-384
// certificate valid until 2049-10-28, published in
// https://aws-nitro-enclaves.amazonaws.com/AWS_NitroEnclaves_Root-G1.zip
const nitroRootG1 = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

func parseBase64Cert(b64 string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	return x509.ParseCertificate(der)
}

// VerifySignerChain checks that the certificate which signed an attested
// receipt chains through bundle to rootPEM, or to the Nitro root when rootPEM
// is empty. Validity is judged at signedAt, not at verification time.
func VerifySignerChain(signerB64 string, bundle []string, signedAt time.Time, rootPEM string) error {
	signer, err := parseBase64Cert(signerB64)
	if err != nil {
		return fmt.Errorf("receipt signer certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for i, entry := range bundle {
		ca, err := parseBase64Cert(entry)
		if err != nil {
			return fmt.Errorf("receipt CA bundle entry %d: %w", i, err)
		}
		intermediates.AddCert(ca)
	}

	if rootPEM == "" {
		rootPEM = nitroRootG1
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(rootPEM)) {
		return fmt.Errorf("no certificate in trusted root PEM")
	}

	_, err = signer.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   signedAt,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUntrustedSigner, err)
	}
	return nil
}
