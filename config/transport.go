package config

import (
	"net/netip"
	"strings"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/socket"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/tls"
)

// SocketOptions 把配置转换成 socket.New 的选项
func (c *Config) SocketOptions() ([]socket.Option, error) {
	s := &c.Socket
	var opts []socket.Option

	if s.Protocol == "udp" {
		opts = append(opts, socket.WithProtocol(socket.Datagram))
	}
	if s.Backlog > 0 {
		opts = append(opts, socket.WithBacklog(s.Backlog))
	}
	if s.MaxWorkers > 0 {
		opts = append(opts, socket.WithMaxWorkers(s.MaxWorkers))
	}
	if s.MaxRecordSize > 0 {
		opts = append(opts, socket.WithMaxRecordSize(s.MaxRecordSize))
	}
	if s.TLSPorts != nil {
		ports := make([]uint16, len(s.TLSPorts))
		for i, p := range s.TLSPorts {
			ports[i] = uint16(p)
		}
		opts = append(opts, socket.WithTLSPorts(ports...))
	}

	if len(s.AllowedPeers) > 0 {
		prefixes, err := parsePrefixes(s.AllowedPeers)
		if err != nil {
			return nil, err
		}
		opts = append(opts, socket.WithAllowedPeers(prefixes...))
	}
	if len(s.DNSServers) > 0 {
		opts = append(opts, socket.WithResolver(address.NewResolver(s.DNSServers...)))
	}

	tlsOpts := c.TLS.Options()
	opts = append(opts, socket.WithTLS(tlsOpts))
	return opts, nil
}

// Mode 打开 socket 用的模式
func (c *Config) Mode() socket.Mode {
	mode := socket.ModeReadWrite
	if c.Socket.Server {
		mode |= socket.ModeCreate
	}
	if c.Socket.Async {
		mode |= socket.ModeAsync
	}
	return mode
}

// Options 转换成 TLS 选项
func (t *TLS) Options() tls.Options {
	return tls.Options{
		KeyMaterial:        []byte(t.KeyPEM),
		KeyFile:            t.KeyFile,
		CertFile:           t.CertFile,
		Password:           t.Password,
		CAFile:             t.CAFile,
		CADir:              t.CADir,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
}

// parsePrefixes 接受 CIDR 或单个地址
func parsePrefixes(list []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(list))
	for _, text := range list {
		text = strings.TrimSpace(text)
		if !strings.Contains(text, "/") {
			addr, err := netip.ParseAddr(text)
			if err != nil {
				return nil, errors.Trace(err)
			}
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(text)
		if err != nil {
			return nil, errors.Trace(err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}
