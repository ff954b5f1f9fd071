package bridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lntypes"

	"github.com/JuiceSwapxyz/bridge/poll"
	"github.com/JuiceSwapxyz/bridge/swap"
	"github.com/JuiceSwapxyz/bridge/swapdb"
)

const (
	// defaultRequestTimeout bounds a single http round trip to the swap
	// server.
	defaultRequestTimeout = 30 * time.Second
)

// SwapServerClient talks to the remote swap indexing service over its JSON
// http API. The service is consumed as a black box: records are backed up
// with an idempotent upsert and lockup state is read back during polling.
// It implements swapdb.RemoteSwapStore.
type SwapServerClient struct {
	baseURL string
	client  *http.Client
}

// A compile-time check to ensure that SwapServerClient implements the
// RemoteSwapStore interface.
var _ swapdb.RemoteSwapStore = (*SwapServerClient)(nil)

// NewSwapServerClient creates a client for the swap server at the given
// base url. A nil http client falls back to a default with a sane timeout.
func NewSwapServerClient(baseURL string,
	client *http.Client) *SwapServerClient {

	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &SwapServerClient{
		baseURL: baseURL,
		client:  client,
	}
}

// SaveSwap upserts the record on the swap server, keyed by its id.
func (c *SwapServerClient) SaveSwap(ctx context.Context,
	record *swapdb.SwapRecord) error {

	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/v2/swap/backup",
		bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("swap server returned status %d",
			resp.StatusCode)
	}

	return nil
}

// LockupInfo is the wire shape of one lockup record.
type LockupInfo struct {
	Preimage      string `json:"preimage,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Timelock      int64  `json:"timelock"`
	Amount        int64  `json:"amount"`
}

// LockupResponse is the wire shape of a lockup lookup. An absent lockups
// object is the not-yet-ready signal.
type LockupResponse struct {
	Lockups *LockupInfo `json:"lockups,omitempty"`
}

// GetLockup fetches the lockup record for the given preimage hash. The
// absence of the lockup, and of the revealed preimage inside it, are
// reported as retryable conditions for the confirmation poller.
func (c *SwapServerClient) GetLockup(ctx context.Context,
	preimageHash lntypes.Hash) (*LockupResponse, error) {

	endpoint := fmt.Sprintf("%s/v2/swap/lockup?preimageHash=%s",
		c.baseURL, preimageHash.String())

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, endpoint, nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("swap server returned status %d",
			resp.StatusCode)
	}

	var lockup LockupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lockup); err != nil {
		return nil, err
	}

	return &lockup, nil
}

// WaitForLockup polls until the counterparty lockup for the given preimage
// hash becomes visible, within the poller's attempt budget.
func (c *SwapServerClient) WaitForLockup(ctx context.Context,
	preimageHash lntypes.Hash, cfg poll.Config) (string, error) {

	return poll.Retry(
		ctx, "counterparty lockup", cfg,
		func(ctx context.Context) (string, error) {
			lockup, err := c.GetLockup(ctx, preimageHash)
			if err != nil {
				return "", err
			}

			if lockup.Lockups == nil {
				return "", fmt.Errorf("lockup for %v not "+
					"visible: %w", preimageHash,
					poll.ErrRetryable)
			}

			return lockup.Lockups.TransactionID, nil
		},
	)
}

// WaitForPreimage polls until the counterparty claim reveals the preimage,
// within the poller's attempt budget.
func (c *SwapServerClient) WaitForPreimage(ctx context.Context,
	preimageHash lntypes.Hash, cfg poll.Config) (lntypes.Preimage,
	error) {

	return poll.Retry(
		ctx, "revealed preimage", cfg,
		func(ctx context.Context) (lntypes.Preimage, error) {
			var zero lntypes.Preimage

			lockup, err := c.GetLockup(ctx, preimageHash)
			if err != nil {
				return zero, err
			}

			if lockup.Lockups == nil ||
				lockup.Lockups.Preimage == "" {

				return zero, fmt.Errorf("preimage for %v "+
					"not revealed: %w", preimageHash,
					poll.ErrRetryable)
			}

			preimageBytes, err := hex.DecodeString(
				lockup.Lockups.Preimage,
			)
			if err != nil {
				return zero, err
			}

			preimage, err := lntypes.MakePreimage(preimageBytes)
			if err != nil {
				return zero, err
			}

			// A preimage that doesn't hash to the swap hash is a
			// hard server fault, never worth retrying.
			if !preimage.Matches(preimageHash) {
				return zero, fmt.Errorf("server returned "+
					"preimage not matching hash %v",
					preimageHash)
			}

			return preimage, nil
		},
	)
}

// refundableLockup is the wire shape of one refundable lockup entry.
type refundableLockup struct {
	SwapID      string `json:"swapId"`
	Timelock    int64  `json:"timelock"`
	Amount      int64  `json:"amount"`
	LockAddress string `json:"lockAddress"`
}

// FetchRefundableLockups returns the lockups the server tracks for the
// given refund address, as input for the refund eligibility calculator.
func (c *SwapServerClient) FetchRefundableLockups(ctx context.Context,
	address string) ([]swap.Lockup, error) {

	endpoint := fmt.Sprintf("%s/v2/swap/refundable?address=%s",
		c.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, endpoint, nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("swap server returned status %d",
			resp.StatusCode)
	}

	var entries []refundableLockup
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	lockups := make([]swap.Lockup, 0, len(entries))
	for _, entry := range entries {
		lockups = append(lockups, swap.Lockup{
			SwapID:      entry.SwapID,
			Timelock:    entry.Timelock,
			Amount:      btcutil.Amount(entry.Amount),
			LockAddress: entry.LockAddress,
		})
	}

	return lockups, nil
}
