// ABOUTME: Minimal flag parsing shared by subcommands
// ABOUTME: Supports --flag value, --flag=value and boolean switches mixed with positionals

package main

import (
	"fmt"
	"strings"
)

type cmdArgs struct {
	positional []string
	values     map[string]string
	switches   map[string]bool
}

// parseArgs splits args into positionals, valued flags and boolean switches.
// Only names listed in valued or switches are accepted.
func parseArgs(args []string, valued, switches []string) (*cmdArgs, error) {
	out := &cmdArgs{values: map[string]string{}, switches: map[string]bool{}}
	isValued := func(name string) bool { return contains(valued, name) }
	isSwitch := func(name string) bool { return contains(switches, name) }

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out.positional = append(out.positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "--") {
			out.positional = append(out.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		switch {
		case isSwitch(name):
			if hasValue {
				return nil, fmt.Errorf("--%s does not take a value", name)
			}
			out.switches[name] = true
		case isValued(name):
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("--%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			out.values[name] = value
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// need returns an error unless at least n positionals are present.
func (a *cmdArgs) need(n int, usage string) error {
	if len(a.positional) < n {
		return fmt.Errorf("usage: coven-hcs10 %s", usage)
	}
	return nil
}
