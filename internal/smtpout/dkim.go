package smtpout

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

// dkimHeaderKeys are the headers covered by the signature.
var dkimHeaderKeys = []string{"From", "To", "Subject", "Date", "Message-ID"}

// Signer signs outbound messages with the sending domain's DKIM key. Mail
// for the platform's sending domain is never sent unsigned, so a missing or
// unparseable key must abort the job instead of degrading.
type Signer struct {
	domain   string
	selector string
	key      crypto.Signer
}

// NewSigner loads the private key from the PEM file at keyPath. RSA
// (PKCS#1/PKCS#8) and Ed25519 keys are supported.
func NewSigner(domain, selector, keyPath string) (*Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read DKIM key %s: %w", keyPath, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in DKIM key %s", keyPath)
	}

	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DKIM key %s: %w", keyPath, err)
	}

	return &Signer{
		domain:   domain,
		selector: selector,
		key:      key,
	}, nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("not a PKCS#8 or PKCS#1 private key")
}

// Sign returns the message with the DKIM-Signature header prepended.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	opts := &dkim.SignOptions{
		Domain:     s.domain,
		Selector:   s.selector,
		Signer:     s.key,
		HeaderKeys: dkimHeaderKeys,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(msg), opts); err != nil {
		return nil, fmt.Errorf("DKIM signing failed: %w", err)
	}
	return signed.Bytes(), nil
}
