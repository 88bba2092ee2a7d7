package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stakeoracle/gateway/middleware"
)

var errNoCaller = errors.New("caller address required; pass --as or set Address in the config")

// call performs a JSON request against the node. Authenticated calls carry a
// bearer token, minted from the shared secret when none is configured.
func (a *app) call(ctx context.Context, method, path string, body any, authenticated bool) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.Endpoint+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token, err := a.bearer()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, failure.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return raw, nil
}

func (a *app) bearer() (string, error) {
	if a.cfg.Token != "" {
		return a.cfg.Token, nil
	}
	caller, err := a.caller()
	if err != nil {
		return "", err
	}
	return a.sign(caller)
}

func (a *app) sign(subject string) (string, error) {
	secret, err := a.secrets.Get()
	if err != nil {
		return "", err
	}
	ttl, err := a.cfg.tokenTTL()
	if err != nil {
		return "", err
	}
	return middleware.IssueToken(secret, middleware.TokenClaims{
		Subject:  subject,
		Issuer:   a.cfg.Issuer,
		Audience: a.cfg.Audience,
		TTL:      ttl,
	})
}

func (a *app) caller() (string, error) {
	if a.cfg.Address == "" {
		return "", errNoCaller
	}
	return normalizeAddress(a.cfg.Address)
}

func normalizeAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}

func (a *app) print(raw json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(raw), "", "  "); err != nil {
		_, err = a.out.Write(raw)
		return err
	}
	out.WriteByte('\n')
	_, err := a.out.Write(out.Bytes())
	return err
}
