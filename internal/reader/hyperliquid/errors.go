package hyperliquid

import (
	"fmt"

	"liqfeed/internal/models"
)

// DiscoveryErrorKind classifies a total discovery failure.
type DiscoveryErrorKind int

const (
	// DiscoveryEmptyResult means both queries succeeded but yielded no vaults.
	DiscoveryEmptyResult DiscoveryErrorKind = iota + 1
	// DiscoveryUnreachable means the venue could not be reached.
	DiscoveryUnreachable
	// DiscoveryMalformed means the venue answered with data that could not be parsed.
	DiscoveryMalformed
)

func (k DiscoveryErrorKind) String() string {
	switch k {
	case DiscoveryEmptyResult:
		return "empty_result"
	case DiscoveryUnreachable:
		return "unreachable"
	case DiscoveryMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DiscoveryError is returned by Discover when neither the primary nor the
// fallback query produced a vault.
type DiscoveryError struct {
	Kind DiscoveryErrorKind
	Err  error
}

func (e *DiscoveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("vault discovery failed: %s", e.Kind)
	}
	return fmt.Sprintf("vault discovery failed: %s: %v", e.Kind, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// PollErrorKind classifies a failed fill poll.
type PollErrorKind int

const (
	PollTimeout PollErrorKind = iota + 1
	PollMalformed
	PollUnreachable
)

func (k PollErrorKind) String() string {
	switch k {
	case PollTimeout:
		return "timeout"
	case PollMalformed:
		return "malformed"
	case PollUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// PollError is returned by Poll. Individual bad fill entries never produce
// one; only a failed request or an unparsable response does.
type PollError struct {
	Kind  PollErrorKind
	Vault models.VaultAddress
	Err   error
}

func (e *PollError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("poll %s failed: %s", e.Vault, e.Kind)
	}
	return fmt.Sprintf("poll %s failed: %s: %v", e.Vault, e.Kind, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
