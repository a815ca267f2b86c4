package swarm

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/mtzanidakis/hive/internal/navigator"
	"github.com/nats-io/nats.go"
)

var (
	ErrNoLeaderBot               = errors.New("no leader bot")
	ErrConversationStateNotFound = errors.New("conversation state not found")
	ErrInvalidConfiguration      = errors.New("invalid configuration")
	ErrSwarmNotFound             = errors.New("swarm not found")
)

var networkErrnos = []error{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

var networkMessages = []string{
	"econnrefused", "etimedout", "enotfound", "econnreset",
	"connection refused", "connection reset", "no such host", "i/o timeout",
	"network is unreachable",
}

var configMessages = []string{
	"no leader bot", "conversation state not found", "invalid configuration",
}

// IsFatal classifies err for the state machine. Network failures are never
// fatal, configuration failures always are, and anything else is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if isNetworkError(err) {
		return false
	}
	for _, target := range []error{
		ErrNoLeaderBot,
		ErrConversationStateNotFound,
		ErrInvalidConfiguration,
		navigator.ErrInvalidConfiguration,
		navigator.ErrMissingVersion,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range configMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	for _, errno := range networkErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrConnectionClosed) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range networkMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
