package proto

import (
	"net"

	"github.com/pires/go-proxyproto"
)

// LocalProxyHeader returns a PROXY protocol v2 header with the LOCAL command,
// used for connections that originate from dozer itself.
func LocalProxyHeader() ([]byte, error) {
	h := &proxyproto.Header{
		Version:           2,
		Command:           proxyproto.LOCAL,
		TransportProtocol: proxyproto.UNSPEC,
	}
	return h.Format()
}

// ProxyHeader returns a PROXY protocol v2 header describing a relayed client
// connection from src to dst.
func ProxyHeader(src, dst net.Addr) ([]byte, error) {
	return proxyproto.HeaderProxyFromAddrs(2, src, dst).Format()
}
