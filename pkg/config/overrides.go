package config

import (
	"fmt"
	"strconv"
)

// ApplyOverrides applies the front-end's positional arguments:
//
//	[port [host1 port1 [host2 port2 [host3 port3]]]]
//
// Each host/port pair replaces the endpoint of the backend at the same
// priority position. Missing trailing arguments leave the loaded values.
func ApplyOverrides(cfg *Config, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if len(args)%2 == 0 {
		return fmt.Errorf("expected a port followed by host/port pairs, got %d arguments", len(args))
	}

	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	cfg.Gateway.Port = port

	pairs := args[1:]
	if len(pairs)/2 > len(cfg.Backends) {
		return fmt.Errorf("%d backend endpoints given but only %d backends configured", len(pairs)/2, len(cfg.Backends))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		port, err := parsePort(pairs[i+1])
		if err != nil {
			return err
		}
		b := &cfg.Backends[i/2]
		b.Host = pairs[i]
		b.Port = port
	}
	return nil
}

// ApplyNodeOverrides applies a storage node's positional arguments: [port].
func ApplyNodeOverrides(cfg *NodeConfig, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		port, err := parsePort(args[0])
		if err != nil {
			return err
		}
		cfg.Node.Port = port
		return nil
	default:
		return fmt.Errorf("expected at most one argument (port), got %d", len(args))
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
