package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// discoveryService mirrors the wire shape of one discovery service.
type discoveryService struct {
	ID                  string   `json:"id"`
	ThingTypes          []string `json:"thing_types"`
	ScanTimeoutSeconds  int      `json:"scan_timeout_seconds"`
	SupportsInput       bool     `json:"supports_input"`
	ScanInProgress      bool     `json:"scan_in_progress"`
	LastScan            string   `json:"last_scan,omitempty"`
	BackgroundDiscovery bool     `json:"background_discovery"`
}

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Manage discovery services and scans",
}

func init() {
	discoveryCmd.AddCommand(discoveryServicesCmd)
	discoveryCmd.AddCommand(discoveryScanCmd)
	discoveryCmd.AddCommand(discoveryAbortCmd)
}

var discoveryServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List registered discovery services",
	RunE: func(_ *cobra.Command, _ []string) error {
		client := newClient()
		var resp struct {
			Services []discoveryService `json:"services"`
			Count    int                `json:"count"`
		}
		if err := client.get("/discovery/services", &resp); err != nil {
			return err
		}

		if resp.Count == 0 {
			fmt.Println("No discovery services registered.")
			return nil
		}

		for _, svc := range resp.Services {
			fmt.Printf("%s\n", svc.ID)
			fmt.Printf("    thing types: %v\n", svc.ThingTypes)
			fmt.Printf("    scan timeout: %ds\n", svc.ScanTimeoutSeconds)
			fmt.Printf("    background: %t\n", svc.BackgroundDiscovery)
			if svc.ScanInProgress {
				fmt.Println("    scan in progress")
			}
			if svc.LastScan != "" {
				fmt.Printf("    last scan: %s\n", svc.LastScan)
			}
		}
		return nil
	},
}

// Scan command flags
var scanInput string

var discoveryScanCmd = &cobra.Command{
	Use:   "scan [binding]",
	Short: "Trigger an active scan",
	Long: `Trigger an active scan on one discovery service, or on all of
them when no binding is given.

Scans run asynchronously. Results land in the inbox; watch them with
'hearthctl inbox list' or over the WebSocket.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newClient()

		if len(args) == 0 {
			if err := client.post("/discovery/scan", nil, nil); err != nil {
				return err
			}
			fmt.Println("Scan started on all services.")
			return nil
		}

		var body any
		if scanInput != "" {
			body = map[string]string{"input": scanInput}
		}
		var resp struct {
			TimeoutSeconds int `json:"timeout_seconds"`
		}
		if err := client.post("/discovery/services/"+args[0]+"/scan", body, &resp); err != nil {
			return err
		}

		if resp.TimeoutSeconds > 0 {
			fmt.Printf("Scan started on %s (stops after %ds).\n", args[0], resp.TimeoutSeconds)
		} else {
			fmt.Printf("Scan started on %s.\n", args[0])
		}
		return nil
	},
}

func init() {
	discoveryScanCmd.Flags().StringVar(&scanInput, "input", "", "Binding-specific scan input (e.g. an mDNS service type)")
}

var discoveryAbortCmd = &cobra.Command{
	Use:   "abort [binding]",
	Short: "Abort scans in progress",
	Long: `Abort the scan on one discovery service, or every in-flight scan
when no binding is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newClient()

		if len(args) == 1 {
			if err := client.post("/discovery/services/"+args[0]+"/abort", nil, nil); err != nil {
				return err
			}
			fmt.Printf("Scan aborted on %s.\n", args[0])
			return nil
		}

		if err := client.post("/discovery/abort", nil, nil); err != nil {
			return err
		}
		fmt.Println("Scans aborted.")
		return nil
	},
}
