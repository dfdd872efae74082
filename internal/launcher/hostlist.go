// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package launcher implements blaunch, the parallel task launcher:
// host-list resolution, remote task submission and polling, and the
// periodic rusage aggregate sent back to the local host daemon.
package launcher

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
)

// HostListSource carries the three mutually-exclusive ways spec.md
// §4.4 lets a caller name hosts.
type HostListSource struct {
	HostsFlag    string   // -z "h1 h2 ..."
	HostFilePath string   // -u <file>
	Positional   []string // first positional is the single host when -z/-u absent
}

// ResolveHosts implements spec.md §4.4's host-list resolution: -z and
// -u are mutually exclusive, and in the absence of both, the next
// positional argument names a single host which is validated via name
// lookup.
func ResolveHosts(src HostListSource, lookup func(string) error) ([]string, error) {
	set := 0
	if src.HostsFlag != "" {
		set++
	}
	if src.HostFilePath != "" {
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("launcher: -z and -u are mutually exclusive")
	}

	switch {
	case src.HostsFlag != "":
		return strings.Fields(src.HostsFlag), nil

	case src.HostFilePath != "":
		return readHostFile(src.HostFilePath)

	default:
		if len(src.Positional) == 0 {
			return nil, fmt.Errorf("launcher: no host given; use -z, -u, or a positional hostname")
		}
		host := src.Positional[0]
		if lookup == nil {
			lookup = defaultLookup
		}
		if err := lookup(host); err != nil {
			return nil, fmt.Errorf("launcher: unknown host %q: %w", host, err)
		}
		return []string{host}, nil
	}
}

// readHostFile parses spec.md §6's host file format: one hostname per
// line, blank lines and trailing whitespace ignored.
func readHostFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("launcher: open host file: %w", err)
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("launcher: read host file: %w", err)
	}
	return hosts, nil
}

func defaultLookup(host string) error {
	_, err := net.LookupHost(host)
	return err
}
