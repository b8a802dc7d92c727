// Package oracle prices freshly created contracts from the grid
// explorer. It runs off-chain: once per block it resolves the newest
// reservation's node to a farm, reads the farm's resource prices, and
// submits a signed pricing extrinsic back through the pool.
package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/threefoldtech/substrate-research/internal/domain"
)

// DefaultExplorerURL is the public grid explorer.
const DefaultExplorerURL = "https://explorer.grid.tf/explorer"

// FetchTimeout bounds each explorer request.
const FetchTimeout = 10 * time.Second

// Node is the explorer's view of a capacity node.
type Node struct {
	ID     uint64 `json:"id"`
	NodeID string `json:"node_id"`
	FarmID uint64 `json:"farm_id"`
}

// Farm carries the farmer identity and published resource prices.
type Farm struct {
	ID             uint64                 `json:"id"`
	ThreebotID     uint64                 `json:"threebot_id"`
	ResourcePrices []domain.ResourcePrice `json:"resource_prices"`
}

// User is the explorer's account record for a farmer.
type User struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Pubkey string `json:"pubkey"`
}

// Explorer fetches grid metadata over HTTP.
type Explorer struct {
	baseURL string
	client  *http.Client
}

// NewExplorer builds a client for the given base URL ("" means the
// public explorer).
func NewExplorer(baseURL string) *Explorer {
	if baseURL == "" {
		baseURL = DefaultExplorerURL
	}
	return &Explorer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: FetchTimeout},
	}
}

// ToDecimalBytes renders an id as decimal ASCII for URL paths.
func ToDecimalBytes(id uint64) []byte {
	return strconv.AppendUint(nil, id, 10)
}

// NodeByID looks a node up by its public key identifier.
func (e *Explorer) NodeByID(nodeID string) (*Node, error) {
	var node Node
	if err := e.getJSON(e.baseURL+"/nodes/"+nodeID, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// FarmByID looks a farm up by numeric id.
func (e *Explorer) FarmByID(id uint64) (*Farm, error) {
	var farm Farm
	if err := e.getJSON(e.baseURL+"/farms/"+string(ToDecimalBytes(id)), &farm); err != nil {
		return nil, err
	}
	return &farm, nil
}

// UserByID looks a user up by numeric id.
func (e *Explorer) UserByID(id uint64) (*User, error) {
	var user User
	if err := e.getJSON(e.baseURL+"/users/"+string(ToDecimalBytes(id)), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (e *Explorer) getJSON(url string, into any) error {
	resp, err := e.client.Get(url)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrHTTPFetching, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s: status %d", domain.ErrHTTPFetching, url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", domain.ErrHTTPFetching, url, err)
	}
	return nil
}
