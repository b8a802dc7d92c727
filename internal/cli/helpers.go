package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/threefoldtech/substrate-research/internal/chain"
	"github.com/threefoldtech/substrate-research/internal/daemon"
	"github.com/threefoldtech/substrate-research/internal/security"
)

// loadKeypair reads the local account used to sign extrinsics.
func loadKeypair() (*security.Keypair, error) {
	return security.LoadOrCreateKeypair(daemon.GriddHome())
}

// submitCall signs a call with the local keypair and submits it to the
// node. It prints the accepted extrinsic id.
func submitCall(method string, args any) error {
	kp, err := loadKeypair()
	if err != nil {
		return fmt.Errorf("load keypair: %w", err)
	}

	call, err := chain.NewCall(method, args)
	if err != nil {
		return err
	}
	ext, err := chain.Sign(kp, call)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ext)
	if err != nil {
		return err
	}

	resp, err := http.Post(nodeURL+"/api/extrinsics", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit to %s: %w", nodeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node rejected %s: %s", method, string(raw))
	}

	fmt.Printf("submitted %s as %s\n", method, ext.ID)
	return nil
}

// getJSON fetches a node API path into out.
func getJSON(path string, out any) error {
	resp, err := http.Get(nodeURL + path)
	if err != nil {
		return fmt.Errorf("query %s: %w", nodeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
