package raven_transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
)

const unknownAddress = "0.0.0.0"

// Here returns the caller location formatted as "file in func at line",
// suitable as an event culprit.
func Here() string {
	return location(2)
}

func location(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	fn := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		fn = filepath.Base(f.Name())
	}

	return fmt.Sprintf("%s in %s at %d", file, fn, line)
}

func hostName() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

// localAddress returns the first non-loopback IPv4 address of this host
func localAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return unknownAddress
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}

	return unknownAddress
}
