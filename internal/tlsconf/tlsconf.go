// Package tlsconf builds mutual-TLS configurations from PEM files.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
)

func ParseCAFile(certfile string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	pem, err := os.ReadFile(certfile)
	if err != nil {
		return nil, err
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("PEM parsing error")
	}
	return pool, nil
}

// ClientAuthClient returns a client config that presents clientCert and only
// accepts a server certificate for serverName signed by rootCA.
func ClientAuthClient(serverName string, rootCA *x509.CertPool, clientCert tls.Certificate) (*tls.Config, error) {
	if serverName == "" {
		return nil, errors.New("server name must not be empty")
	}
	if rootCA == nil {
		return nil, errors.New("root CA pool must not be nil")
	}
	if clientCert.Certificate == nil || clientCert.PrivateKey == nil {
		return nil, errors.New("client certificate is incomplete")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      rootCA,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientAuthClientFromFiles loads ca, cert and key and calls ClientAuthClient.
func ClientAuthClientFromFiles(ca, cert, key, serverName string) (*tls.Config, error) {
	pool, err := ParseCAFile(ca)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse ca file")
	}
	clientCert, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse cert/key pair")
	}
	tlsConfig, err := ClientAuthClient(serverName, pool, clientCert)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build tls config")
	}
	return tlsConfig, nil
}

// ClientAuthServer is the server side counterpart of ClientAuthClient.
func ClientAuthServer(ca *x509.CertPool, serverCert tls.Certificate) *tls.Config {
	if ca == nil {
		panic(ca)
	}
	if serverCert.Certificate == nil || serverCert.PrivateKey == nil {
		panic(serverCert)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    ca,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
}
