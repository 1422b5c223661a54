package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

type CommandArgs struct {
	commandName string
	params      map[string]string
	err         error
}

var errMissingValue = errors.New("missing value")

// NewCommandArgs reads the command name and -name value pairs.
// A flag without a value is reported by Err.
func NewCommandArgs(args []string) *CommandArgs {
	var ca = &CommandArgs{params: make(map[string]string)}
	for i := 1; i < len(args); i++ {
		var arg = args[i]
		if !strings.HasPrefix(arg, "-") {
			if ca.commandName == "" {
				ca.commandName = arg
			}
			continue
		}
		var k = strings.TrimPrefix(arg, "-")
		if i == len(args)-1 {
			ca.fail(k, "", errMissingValue)
			break
		}
		ca.params[k] = args[i+1]
		i++
	}
	return ca
}

func (ca *CommandArgs) CommandName() string {
	return ca.commandName
}

// Err returns every parameter that could not be parsed.
func (ca *CommandArgs) Err() error {
	return ca.err
}

func (ca *CommandArgs) fail(name, val string, err error) {
	ca.err = multierr.Append(ca.err, fmt.Errorf("parameter -%v %q: %w", name, val, err))
}

func (ca *CommandArgs) Has(name string) bool {
	var _, ok = ca.params[name]
	return ok
}

func (ca *CommandArgs) GetString(name string, defaultVal string) string {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	return val
}

func (ca *CommandArgs) GetInt(name string, defaultVal int) int {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	var v, err = strconv.Atoi(val)
	if err != nil {
		ca.fail(name, val, err)
		return defaultVal
	}
	return v
}

func (ca *CommandArgs) GetFloat(name string, defaultVal float64) float64 {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	var v, err = strconv.ParseFloat(val, 64)
	if err != nil {
		ca.fail(name, val, err)
		return defaultVal
	}
	return v
}

func (ca *CommandArgs) GetBool(name string, defaultVal bool) bool {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	var v, err = strconv.ParseBool(val)
	if err != nil {
		ca.fail(name, val, err)
		return defaultVal
	}
	return v
}

// GetFloats parses a comma separated list.
func (ca *CommandArgs) GetFloats(name string, defaultVal []float64) []float64 {
	var val, ok = ca.params[name]
	if !ok {
		return defaultVal
	}
	var result []float64
	for _, s := range strings.Split(val, ",") {
		var v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			ca.fail(name, val, err)
			return defaultVal
		}
		result = append(result, v)
	}
	return result
}

type CommandHandler struct {
	items map[string]func() error
}

func NewCommandHandler() *CommandHandler {
	return &CommandHandler{
		items: make(map[string]func() error),
	}
}

func (ch *CommandHandler) Add(name string, handler func() error) {
	ch.items[name] = handler
}

func (ch *CommandHandler) Names() []string {
	var names = make([]string, 0, len(ch.items))
	for name := range ch.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ch *CommandHandler) Execute(commandName string) error {
	handler, found := ch.items[commandName]
	if !found {
		return fmt.Errorf("command not found %q, available: %v", commandName, strings.Join(ch.Names(), ", "))
	}
	return handler()
}
