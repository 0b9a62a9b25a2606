package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"tipjar/pkg/models"
	"tipjar/pkg/rpc"

	"github.com/urfave/cli/v2"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Test configuration, node and contract, then exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output test results as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			path, cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			report := rpc.Check(context.Background(), path, cfg)

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			} else {
				printReport(os.Stdout, report)
			}
			if !report.Healthy() {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r models.CheckReport) {
	fmt.Fprintf(w, "Testing configuration at: %s\n", r.ConfigPath)
	if !r.ValidStructure {
		for _, e := range r.StructureErrors {
			fmt.Fprintf(w, "Error: %s\n", e)
		}
		return
	}

	fmt.Fprintf(w, "Contract: %s\n", r.Contract)
	fmt.Fprintf(w, "  RPC: %s ... ", r.RPCURL)
	if r.RPCStatus != "ok" {
		fmt.Fprintf(w, "Failed: %s\n", r.RPCError)
		return
	}
	fmt.Fprintf(w, "OK (ChainID: %d, %dms)", r.ObservedChainID, r.LatencyMillis)
	switch {
	case r.ChainIDMismatch:
		fmt.Fprintf(w, " - MISMATCH! Expected %d", r.ConfigChainID)
	case r.ConfigChainID != 0:
		fmt.Fprint(w, " - Verified")
	}
	fmt.Fprintln(w)

	if r.HasCode {
		fmt.Fprintf(w, "  Tips: %d\n", r.TipCount)
		fmt.Fprintf(w, "  getAllTips: %s\n", yesNo(r.BulkSupported))
		if r.Owner != "" {
			fmt.Fprintf(w, "  Owner: %s\n", r.Owner)
		}
	}
	for _, e := range r.ContractErrors {
		fmt.Fprintf(w, "  Error: %s\n", e)
	}
}

func yesNo(b bool) string {
	if b {
		return "supported"
	}
	return "not supported (falling back to indexed reads)"
}
