package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// thingSummary mirrors the wire shape of one registered thing.
type thingSummary struct {
	UID          string `json:"uid"`
	ThingTypeUID string `json:"thing_type_uid"`
	BridgeUID    string `json:"bridge_uid"`
	Label        string `json:"label"`
	Enabled      bool   `json:"enabled"`
}

var thingsCmd = &cobra.Command{
	Use:   "things",
	Short: "Manage registered things",
}

func init() {
	thingsCmd.AddCommand(thingsListCmd)
	thingsCmd.AddCommand(thingsRemoveCmd)
	thingsCmd.AddCommand(thingsEnableCmd)
	thingsCmd.AddCommand(thingsDisableCmd)
}

var thingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered things",
	RunE: func(_ *cobra.Command, _ []string) error {
		client := newClient()
		var resp struct {
			Things []thingSummary `json:"things"`
			Count  int            `json:"count"`
		}
		if err := client.get("/things", &resp); err != nil {
			return err
		}

		if resp.Count == 0 {
			fmt.Println("No things registered.")
			return nil
		}

		for _, t := range resp.Things {
			state := "enabled"
			if !t.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %q  [%s, %s]\n", t.UID, t.Label, t.ThingTypeUID, state)
			if t.BridgeUID != "" {
				fmt.Printf("    bridge: %s\n", t.BridgeUID)
			}
		}
		fmt.Printf("\n%d thing%s.\n", resp.Count, plural(resp.Count, "", "s"))
		return nil
	},
}

var thingsRemoveCmd = &cobra.Command{
	Use:   "remove <uid>",
	Short: "Remove a registered thing",
	Long: `Remove a registered thing.

If a matching ignored inbox entry exists, it is restored to NEW so the
device can be approved again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newClient()
		if err := client.delete("/things/"+args[0], nil); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var thingsEnableCmd = &cobra.Command{
	Use:   "enable <uid>",
	Short: "Enable a thing",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return setThingEnabled(args[0], true)
	},
}

var thingsDisableCmd = &cobra.Command{
	Use:   "disable <uid>",
	Short: "Disable a thing",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return setThingEnabled(args[0], false)
	},
}

func setThingEnabled(uid string, enabled bool) error {
	client := newClient()
	body := map[string]bool{"enabled": enabled}
	if err := client.put("/things/"+uid+"/enabled", body, nil); err != nil {
		return err
	}

	if enabled {
		fmt.Printf("Enabled %s\n", uid)
	} else {
		fmt.Printf("Disabled %s\n", uid)
	}
	return nil
}
