package address

import (
	"strconv"
	"strings"

	"github.com/adam-ikari/uvrpc/errs"
)

// Transport names one of the four interchangeable wire carriers.
type Transport string

const (
	TCP    Transport = "tcp"
	UDP    Transport = "udp"
	IPC    Transport = "ipc"
	Inproc Transport = "inproc"
)

func (t Transport) valid() bool {
	switch t {
	case TCP, UDP, IPC, Inproc:
		return true
	default:
		return false
	}
}

// Address is the parsed form of a "<transport>://<location>" URL.
// For TCP/UDP, Host and Port are populated. For IPC, Path is populated.
// For Inproc, Name is populated and is an opaque rendezvous key.
type Address struct {
	Transport Transport
	Host      string
	Port      uint16
	Path      string
	Name      string
	raw       string
}

// String reconstructs the original address form, for logging.
func (a Address) String() string {
	if a.raw != "" {
		return a.raw
	}
	switch a.Transport {
	case TCP, UDP:
		return string(a.Transport) + "://" + a.Host + ":" + strconv.Itoa(int(a.Port))
	case IPC:
		return string(a.Transport) + "://" + a.Path
	case Inproc:
		return string(a.Transport) + "://" + a.Name
	default:
		return ""
	}
}

// ParseAddress parses the transport URL forms: tcp://host:port,
// udp://host:port, ipc://path, inproc://name.
func ParseAddress(raw string) (Address, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return Address{}, errs.New(errs.InvalidArgument, "address: %q missing <transport>:// prefix", raw)
	}
	scheme := Transport(raw[:idx])
	location := raw[idx+3:]
	if !scheme.valid() {
		return Address{}, errs.New(errs.InvalidArgument, "address: unknown transport %q", raw[:idx])
	}

	a := Address{Transport: scheme, raw: raw}

	switch scheme {
	case TCP, UDP:
		host, portStr, err := splitHostPort(location)
		if err != nil {
			return Address{}, errs.Wrap(errs.InvalidArgument, err, "address: %q", raw)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Address{}, errs.New(errs.InvalidArgument, "address: %q has invalid port %q", raw, portStr)
		}
		a.Host = host
		a.Port = uint16(port)
	case IPC:
		if location == "" {
			return Address{}, errs.New(errs.InvalidArgument, "address: %q is missing a filesystem path", raw)
		}
		a.Path = location
	case Inproc:
		if location == "" {
			return Address{}, errs.New(errs.InvalidArgument, "address: %q is missing a rendezvous name", raw)
		}
		a.Name = location
	}

	return a, nil
}

// splitHostPort splits "host:port" honoring bracketed IPv6 literals
// ("[::1]:1234") the way net.SplitHostPort does, without requiring the
// caller to pre-validate that a port is even present in an IPv4 literal.
func splitHostPort(location string) (host, port string, err error) {
	last := strings.LastIndex(location, ":")
	if last < 0 {
		return "", "", errs.New(errs.InvalidArgument, "missing host:port separator in %q", location)
	}
	host = location[:last]
	port = location[last+1:]
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	if host == "" || port == "" {
		return "", "", errs.New(errs.InvalidArgument, "empty host or port in %q", location)
	}
	return host, port, nil
}
