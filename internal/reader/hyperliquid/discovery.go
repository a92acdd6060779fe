package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"liqfeed/internal/models"
	"liqfeed/logger"
)

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

var errNoVaults = errors.New("no vault addresses in response")

// Discover resolves the current vault set. The explicit vault list is asked
// for first; when it fails or yields nothing, addresses are derived from the
// venue metadata. The result is sorted and free of duplicates.
func (c *Client) Discover(ctx context.Context) ([]models.VaultAddress, error) {
	log := c.log.WithComponent("vault_discovery")

	vaults, primaryErr := c.discoverWith(ctx, "vaults", parseVaultList)
	if primaryErr == nil {
		return vaults, nil
	}
	log.WithError(primaryErr).Debug("primary vault query yielded nothing, using metadata fallback")

	vaults, fallbackErr := c.discoverWith(ctx, "meta", parseMetaVaults)
	if fallbackErr == nil {
		log.WithFields(logger.Fields{"vaults": len(vaults)}).Info("vaults resolved from metadata fallback")
		return vaults, nil
	}

	return nil, &DiscoveryError{
		Kind: combinedKind(discoveryKind(primaryErr), discoveryKind(fallbackErr)),
		Err:  fmt.Errorf("primary: %v; fallback: %w", primaryErr, fallbackErr),
	}
}

func (c *Client) discoverWith(ctx context.Context, query string, parse func(json.RawMessage) ([]models.VaultAddress, error)) ([]models.VaultAddress, error) {
	raw, err := c.info(ctx, infoRequest{Type: query})
	if err != nil {
		return nil, err
	}
	vaults, err := parse(raw)
	if err != nil {
		return nil, &requestError{kind: failureDecode, err: fmt.Errorf("%s response: %w", query, err)}
	}
	vaults = uniqueSorted(vaults)
	if len(vaults) == 0 {
		return nil, fmt.Errorf("%s response: %w", query, errNoVaults)
	}
	return vaults, nil
}

func discoveryKind(err error) DiscoveryErrorKind {
	if errors.Is(err, errNoVaults) {
		return DiscoveryEmptyResult
	}
	switch failureOf(err) {
	case failureDecode:
		return DiscoveryMalformed
	default:
		return DiscoveryUnreachable
	}
}

// combinedKind classifies a discovery that failed on both queries. It is
// Unreachable only when neither query got an answer; otherwise the answer
// that did arrive decides, and a malformed answer outranks an empty one.
func combinedKind(primary, fallback DiscoveryErrorKind) DiscoveryErrorKind {
	switch {
	case primary == fallback:
		return primary
	case primary == DiscoveryUnreachable:
		return fallback
	case fallback == DiscoveryUnreachable:
		return primary
	default:
		return DiscoveryMalformed
	}
}

// parseVaultList accepts either a bare array of descriptors or an object
// carrying them under "vaults". A non-empty list none of whose entries holds
// an address is malformed.
func parseVaultList(raw json.RawMessage) ([]models.VaultAddress, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapped struct {
			Vaults []json.RawMessage `json:"vaults"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("unexpected vault list shape: %w", err)
		}
		entries = wrapped.Vaults
	}

	out := make([]models.VaultAddress, 0, len(entries))
	for _, e := range entries {
		if addr, ok := vaultAddressOf(e); ok {
			out = append(out, addr)
		}
	}
	if len(entries) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("%d vault entries without an address", len(entries))
	}
	return out, nil
}

// parseMetaVaults derives addresses from the metadata document: the top-level
// "vaults" list plus any vaultAddress carried by universe assets.
func parseMetaVaults(raw json.RawMessage) ([]models.VaultAddress, error) {
	var meta struct {
		Vaults   []json.RawMessage `json:"vaults"`
		Universe []struct {
			VaultAddress string `json:"vaultAddress"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unexpected meta shape: %w", err)
	}

	var out []models.VaultAddress
	for _, e := range meta.Vaults {
		if addr, ok := vaultAddressOf(e); ok {
			out = append(out, addr)
		}
	}
	for _, asset := range meta.Universe {
		if addr := models.NormalizeVault(asset.VaultAddress); addr != "" {
			out = append(out, addr)
		}
	}
	return out, nil
}

// vaultAddressOf reads an address from a bare string or from a descriptor
// object.
func vaultAddressOf(raw json.RawMessage) (models.VaultAddress, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		addr := models.NormalizeVault(s)
		return addr, addr != ""
	}

	var d struct {
		VaultAddress string `json:"vaultAddress"`
		Address      string `json:"address"`
		Vault        string `json:"vault"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", false
	}
	for _, candidate := range []string{d.VaultAddress, d.Address, d.Vault} {
		if addr := models.NormalizeVault(candidate); addr != "" {
			return addr, true
		}
	}
	return "", false
}

func uniqueSorted(in []models.VaultAddress) []models.VaultAddress {
	seen := make(map[models.VaultAddress]struct{}, len(in))
	out := make([]models.VaultAddress, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
