package tls

import (
	"github.com/jabberwocky238/netstream/common/errors"
)

// Option names in the TLS socket-option namespace.
const (
	OptKeyMaterial = iota + 1 // PEM text: private key, optionally followed by its certificate chain
	OptKeyFile                // PEM, encrypted PEM or PKCS#12 (.p12/.pfx)
	OptCertFile
	OptPassword
	OptCAFile
	OptCADir
	OptServerName
	OptInsecureSkipVerify

	// read-only, available once the handshake completed
	OptProtocolVersion
	OptCipherSuite
	OptPeerSubject
)

var (
	ErrUnknownOption = errors.New("unknown TLS option")
	ErrWriteOnly     = errors.New("TLS option is write-only")
	ErrReadOnly      = errors.New("TLS option is read-only")
	ErrBadValue      = errors.New("bad value for TLS option")
)

// Options configure the client side of a TLS session.
type Options struct {
	KeyMaterial        []byte
	KeyFile            string
	CertFile           string
	Password           string
	CAFile             string
	CADir              string
	ServerName         string
	InsecureSkipVerify bool
}

// Set assigns one option. Strings and byte slices are interchangeable for
// text options.
func (o *Options) Set(name int, value interface{}) error {
	if name == OptInsecureSkipVerify {
		b, ok := value.(bool)
		if !ok {
			return errors.TraceMsg(ErrBadValue, "want bool")
		}
		o.InsecureSkipVerify = b
		return nil
	}
	if name >= OptProtocolVersion && name <= OptPeerSubject {
		return errors.Trace(ErrReadOnly)
	}

	var text []byte
	switch v := value.(type) {
	case string:
		text = []byte(v)
	case []byte:
		text = append([]byte(nil), v...)
	default:
		return errors.TraceMsg(ErrBadValue, "want string or []byte")
	}
	switch name {
	case OptKeyMaterial:
		o.KeyMaterial = text
	case OptKeyFile:
		o.KeyFile = string(text)
	case OptCertFile:
		o.CertFile = string(text)
	case OptPassword:
		o.Password = string(text)
	case OptCAFile:
		o.CAFile = string(text)
	case OptCADir:
		o.CADir = string(text)
	case OptServerName:
		o.ServerName = string(text)
	default:
		return errors.Tracef("%w: %d", ErrUnknownOption, name)
	}
	return nil
}

// Get reads back a configuration option. Secrets cannot be read back.
func (o *Options) Get(name int) (interface{}, error) {
	switch name {
	case OptKeyMaterial, OptPassword:
		return nil, errors.Trace(ErrWriteOnly)
	case OptKeyFile:
		return o.KeyFile, nil
	case OptCertFile:
		return o.CertFile, nil
	case OptCAFile:
		return o.CAFile, nil
	case OptCADir:
		return o.CADir, nil
	case OptServerName:
		return o.ServerName, nil
	case OptInsecureSkipVerify:
		return o.InsecureSkipVerify, nil
	}
	return nil, errors.Tracef("%w: %d", ErrUnknownOption, name)
}

// Each calls f for every option that differs from its zero value, in
// option-number order.
func (o *Options) Each(f func(name int, value interface{}) error) error {
	set := []struct {
		name  int
		value interface{}
		ok    bool
	}{
		{OptKeyMaterial, o.KeyMaterial, len(o.KeyMaterial) > 0},
		{OptKeyFile, o.KeyFile, o.KeyFile != ""},
		{OptCertFile, o.CertFile, o.CertFile != ""},
		{OptPassword, o.Password, o.Password != ""},
		{OptCAFile, o.CAFile, o.CAFile != ""},
		{OptCADir, o.CADir, o.CADir != ""},
		{OptServerName, o.ServerName, o.ServerName != ""},
		{OptInsecureSkipVerify, o.InsecureSkipVerify, o.InsecureSkipVerify},
	}
	for _, opt := range set {
		if !opt.ok {
			continue
		}
		if err := f(opt.name, opt.value); err != nil {
			return err
		}
	}
	return nil
}

// Wipe zeroes the secrets held by o.
func (o *Options) Wipe() {
	for i := range o.KeyMaterial {
		o.KeyMaterial[i] = 0
	}
	o.KeyMaterial = nil
	o.Password = ""
}
