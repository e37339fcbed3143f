package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// inboxEntry mirrors the wire shape of one inbox entry.
type inboxEntry struct {
	Result struct {
		ThingUID     string         `json:"thing_uid"`
		ThingTypeUID string         `json:"thing_type_uid"`
		BridgeUID    string         `json:"bridge_uid"`
		Label        string         `json:"label"`
		Flag         string         `json:"flag"`
		Properties   map[string]any `json:"properties"`
	} `json:"result"`
	Discoverer string `json:"discoverer"`
}

type inboxListResponse struct {
	Entries []inboxEntry `json:"entries"`
	Count   int          `json:"count"`
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Manage the discovery inbox",
	Long: `Manage the discovery inbox.

The inbox holds discovery results awaiting operator action. Approve an
entry to register it as a thing, ignore it to hide it, or remove it
entirely (it reappears on the next discovery).`,
}

func init() {
	inboxCmd.AddCommand(inboxListCmd)
	inboxCmd.AddCommand(inboxListIgnoredCmd)
	inboxCmd.AddCommand(inboxApproveCmd)
	inboxCmd.AddCommand(inboxIgnoreCmd)
	inboxCmd.AddCommand(inboxUnignoreCmd)
	inboxCmd.AddCommand(inboxRemoveCmd)
	inboxCmd.AddCommand(inboxClearCmd)
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inbox entries awaiting action",
	RunE: func(_ *cobra.Command, _ []string) error {
		return listInbox("NEW")
	},
}

var inboxListIgnoredCmd = &cobra.Command{
	Use:   "listignored",
	Short: "List ignored inbox entries",
	RunE: func(_ *cobra.Command, _ []string) error {
		return listInbox("IGNORED")
	},
}

func listInbox(flag string) error {
	client := newClient()
	var resp inboxListResponse
	if err := client.get("/inbox?flag="+flag, &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		fmt.Println("No entries.")
		return nil
	}

	for _, e := range resp.Entries {
		fmt.Printf("%s  %q  (via %s)\n", e.Result.ThingUID, e.Result.Label, e.Discoverer)
		if e.Result.BridgeUID != "" {
			fmt.Printf("    bridge: %s\n", e.Result.BridgeUID)
		}
		for k, v := range e.Result.Properties {
			fmt.Printf("    %s: %v\n", k, v)
		}
	}
	fmt.Printf("\n%d entr%s.\n", resp.Count, plural(resp.Count, "y", "ies"))
	return nil
}

var inboxApproveCmd = &cobra.Command{
	Use:   "approve <uid> <label> [newThingID]",
	Short: "Approve an entry and register it as a thing",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(_ *cobra.Command, args []string) error {
		body := map[string]string{"label": args[1]}
		if len(args) == 3 {
			body["thing_id"] = args[2]
		}

		client := newClient()
		var created struct {
			UID   string `json:"uid"`
			Label string `json:"label"`
		}
		if err := client.post("/inbox/"+args[0]+"/approve", body, &created); err != nil {
			return err
		}

		fmt.Printf("Registered %s %q\n", created.UID, created.Label)
		return nil
	},
}

var inboxIgnoreCmd = &cobra.Command{
	Use:   "ignore <uid>",
	Short: "Flag an entry as ignored",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newClient()
		if err := client.post("/inbox/"+args[0]+"/ignore", nil, nil); err != nil {
			return err
		}
		fmt.Printf("Ignored %s\n", args[0])
		return nil
	},
}

var inboxUnignoreCmd = &cobra.Command{
	Use:   "unignore <uid>",
	Short: "Restore an ignored entry to the NEW flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newClient()
		if err := client.post("/inbox/"+args[0]+"/unignore", nil, nil); err != nil {
			return err
		}
		fmt.Printf("Restored %s\n", args[0])
		return nil
	},
}

var inboxRemoveCmd = &cobra.Command{
	Use:   "remove <uid|thingTypeUID>",
	Short: "Remove entries from the inbox",
	Long: `Remove an entry from the inbox, or every entry of a thing type
when given a two-segment type UID (e.g. "mdns:service").

Removed entries reappear on the next discovery unless the device is gone
or the result is ignored at the binding level.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := newClient()

		// Thing UIDs have three or more segments, type UIDs exactly two.
		if strings.Count(args[0], ":") == 1 {
			return removeInboxByType(client, args[0])
		}

		if err := client.delete("/inbox/"+args[0], nil); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

// removeInboxByType removes every inbox entry of the given thing type.
func removeInboxByType(client *apiClient, typeUID string) error {
	var resp inboxListResponse
	if err := client.get("/inbox", &resp); err != nil {
		return err
	}

	removed := 0
	for _, e := range resp.Entries {
		if e.Result.ThingTypeUID != typeUID {
			continue
		}
		if err := client.delete("/inbox/"+e.Result.ThingUID, nil); err != nil {
			return fmt.Errorf("removing %s: %w", e.Result.ThingUID, err)
		}
		removed++
	}

	if removed == 0 {
		fmt.Printf("No entries of type %s.\n", typeUID)
		return nil
	}
	fmt.Printf("Removed %d entr%s of type %s.\n", removed, plural(removed, "y", "ies"), typeUID)
	return nil
}

var inboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from the inbox",
	RunE: func(_ *cobra.Command, _ []string) error {
		client := newClient()
		var resp struct {
			Removed int `json:"removed"`
		}
		if err := client.delete("/inbox", &resp); err != nil {
			return err
		}

		fmt.Printf("Removed %d entr%s.\n", resp.Removed, plural(resp.Removed, "y", "ies"))
		return nil
	},
}

// plural picks the singular or plural suffix for a count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}
