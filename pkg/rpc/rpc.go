package rpc

import (
	"context"
	"fmt"
	"time"

	"tipjar/pkg/chain"
	"tipjar/pkg/config"
	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum/ethclient"
)

var CheckTimeout = 30 * time.Second

// Check validates cfg and probes the node and contract it points at.
// Failures are recorded in the report rather than returned.
func Check(ctx context.Context, path string, cfg config.Config) models.CheckReport {
	report := models.CheckReport{
		ConfigPath:     path,
		ValidStructure: true,
		RPCURL:         cfg.RPCURL,
		Contract:       cfg.ContractAddress,
		ConfigChainID:  cfg.ChainID,
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		report.ValidStructure = false
		for _, err := range errs {
			report.StructureErrors = append(report.StructureErrors, err.Error())
		}
		return report
	}
	report.Contract = cfg.Contract().Hex()

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	start := time.Now()
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		report.RPCStatus = "error"
		report.RPCError = err.Error()
		return report
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		report.RPCStatus = "error"
		report.RPCError = fmt.Sprintf("Failed to get ChainID: %v", err)
		return report
	}
	report.RPCStatus = "ok"
	report.LatencyMillis = time.Since(start).Milliseconds()
	report.ObservedChainID = id.Int64()
	if cfg.ChainID != 0 && id.Int64() != cfg.ChainID {
		report.ChainIDMismatch = true
	}

	code, err := client.CodeAt(ctx, cfg.Contract(), nil)
	if err != nil {
		report.ContractErrors = append(report.ContractErrors, fmt.Sprintf("code: %v", err))
		return report
	}
	report.HasCode = len(code) > 0
	if !report.HasCode {
		report.ContractErrors = append(report.ContractErrors, "no contract code at address")
		return report
	}

	reader := chain.NewReader(client, cfg.Contract(), cfg.TipFetchMode, nil)
	if count, err := reader.ReadTipCount(ctx, nil); err != nil {
		report.ContractErrors = append(report.ContractErrors, err.Error())
	} else {
		report.TipCount = int64(count)
	}
	if bulk, err := reader.SupportsBulk(ctx); err != nil {
		report.ContractErrors = append(report.ContractErrors, err.Error())
	} else {
		report.BulkSupported = bulk
	}
	if owner, err := reader.ReadOwner(ctx); err != nil {
		report.ContractErrors = append(report.ContractErrors, err.Error())
	} else {
		report.Owner = owner.Hex()
	}
	return report
}
