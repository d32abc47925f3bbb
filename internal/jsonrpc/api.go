// Package jsonrpc exposes the filter query service over JSON-RPC 2.0.
package jsonrpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/avalanche-logfilter/pkg/query"
)

// Namespace is the JSON-RPC namespace FilterAPI is registered under.
const Namespace = "eth"

// FilterAPI is the eth_ filter method set.
type FilterAPI struct {
	svc *query.Service
}

func NewFilterAPI(svc *query.Service) *FilterAPI {
	return &FilterAPI{svc: svc}
}

// NewFilter implements eth_newFilter.
func (api *FilterAPI) NewFilter(ctx context.Context, crit FilterCriteria) (rpc.ID, error) {
	id, err := api.svc.NewFilter(ctx, crit.Criteria())
	return id, toRPCError(err)
}

// GetFilterLogs implements eth_getFilterLogs. The id is optional at the
// protocol level so a call without it is answered with an invalid params
// error instead of a generic decoding failure.
func (api *FilterAPI) GetFilterLogs(ctx context.Context, id *rpc.ID) ([]*ethtypes.Log, error) {
	logs, err := api.svc.GetFilterLogs(ctx, id)
	return logs, toRPCError(err)
}

// GetFilterChanges implements eth_getFilterChanges.
func (api *FilterAPI) GetFilterChanges(ctx context.Context, id rpc.ID) ([]*ethtypes.Log, error) {
	logs, err := api.svc.GetFilterChanges(ctx, id)
	return logs, toRPCError(err)
}

// UninstallFilter implements eth_uninstallFilter.
func (api *FilterAPI) UninstallFilter(ctx context.Context, id rpc.ID) bool {
	return api.svc.UninstallFilter(ctx, id)
}

// GetLogs implements eth_getLogs.
func (api *FilterAPI) GetLogs(ctx context.Context, crit FilterCriteria) ([]*ethtypes.Log, error) {
	logs, err := api.svc.GetLogs(ctx, crit.Criteria())
	return logs, toRPCError(err)
}

// BlockNumber implements eth_blockNumber. It is zero until the first block
// is stored.
func (api *FilterAPI) BlockNumber() hexutil.Uint64 {
	head, _ := api.svc.BlockNumber()
	return hexutil.Uint64(head)
}
