package telemetry

import (
	"github.com/pkg/errors"
	"strconv"
	"strings"
)

const intervalPrefix = "INTERVAL:"

var (
	ErrCommandParse   = errors.New("malformed command")
	ErrUnknownCommand = errors.New("unknown command")
)

// IntervalCommand requests a new publish period in milliseconds, before clamping.
type IntervalCommand struct {
	Ms uint32
}

// ParseCommand accepts "INTERVAL:<unsigned integer>". Surrounding whitespace is tolerated.
func ParseCommand(payload []byte) (IntervalCommand, error) {
	s := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(s, intervalPrefix) {
		return IntervalCommand{}, ErrUnknownCommand
	}
	arg := strings.TrimSpace(s[len(intervalPrefix):])
	ms, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return IntervalCommand{}, errors.Wrapf(ErrCommandParse, "interval %q", arg)
	}
	return IntervalCommand{Ms: uint32(ms)}, nil
}

func FormatIntervalCommand(ms uint32) []byte {
	return []byte(intervalPrefix + strconv.FormatUint(uint64(ms), 10))
}
