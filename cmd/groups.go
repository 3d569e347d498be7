package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List stored person groups",
	Long: `List stored person groups.

Without flags the most recently updated groups are listed. Pass --id to
inspect one group and its attached sightings.

Examples:
  # List the 50 most recently updated groups
  person-matcher groups

  # Inspect one group
  person-matcher groups --id 7f3a1c22

  # Page through all groups as JSON
  person-matcher groups --count 200 --offset 200 --json`,
	Args: cobra.NoArgs,
	RunE: runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)

	groupsCmd.Flags().String("id", "", "Show one group with its sightings")
	groupsCmd.Flags().Int("count", 50, "Number of groups to list")
	groupsCmd.Flags().Int("offset", 0, "Listing offset for paging")
	groupsCmd.Flags().Bool("json", false, "Output as JSON")
}

// GroupInfo is the listing view of a stored group.
type GroupInfo struct {
	ID          string `json:"id"`
	MemberCount int    `json:"member_count"`
	Clarity     int    `json:"clarity"`
	Summary     string `json:"summary,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// GroupDetail is the single-group view with members.
type GroupDetail struct {
	ID                   string             `json:"id"`
	MemberCount          int                `json:"member_count"`
	Clarity              int                `json:"clarity"`
	HasEmbedding         bool               `json:"has_embedding"`
	RepresentativeImage  string             `json:"representative_image,omitempty"`
	CanonicalDescription person.Description `json:"canonical_description"`
	CreatedAt            string             `json:"created_at"`
	UpdatedAt            string             `json:"updated_at"`
	Sightings            []SightingInfo     `json:"sightings"`
}

// SightingInfo is the listing view of a stored sighting.
type SightingInfo struct {
	ID        int64  `json:"id"`
	Clarity   int    `json:"clarity"`
	ImageRef  string `json:"image_ref,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runGroups(cmd *cobra.Command, args []string) error {
	groupID := mustGetString(cmd, "id")
	count := mustGetInt(cmd, "count")
	offset := mustGetInt(cmd, "offset")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	ctx := context.Background()

	groupRepo, sightingRepo, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if groupID != "" {
		return showGroup(ctx, groupRepo, sightingRepo, groupID, jsonOutput)
	}

	groups, err := groupRepo.List(ctx, count, offset)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	total, err := groupRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}

	infos := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		infos = append(infos, GroupInfo{
			ID:          g.ID,
			MemberCount: g.MemberCount,
			Clarity:     g.CanonicalClarity,
			Summary:     g.CanonicalDescription.NaturalSummary,
			UpdatedAt:   g.UpdatedAt.Format(time.RFC3339),
		})
	}

	if jsonOutput {
		return outputJSON(struct {
			Total  int         `json:"total"`
			Offset int         `json:"offset"`
			Groups []GroupInfo `json:"groups"`
		}{Total: total, Offset: offset, Groups: infos})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMEMBERS\tCLARITY\tUPDATED\tSUMMARY")
	fmt.Fprintln(w, "--\t-------\t-------\t-------\t-------")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			info.ID, info.MemberCount, info.Clarity,
			info.UpdatedAt, truncate(info.Summary, 60))
	}
	w.Flush()
	fmt.Printf("\n%d of %d groups\n", len(infos), total)

	return nil
}

func showGroup(ctx context.Context, groups database.GroupReader, sightings database.SightingReader, id string, jsonOutput bool) error {
	group, err := groups.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch group: %w", err)
	}
	if group == nil {
		return fmt.Errorf("group %s not found", id)
	}

	members, err := sightings.ListByGroup(ctx, id, constants.DefaultPageSize, 0)
	if err != nil {
		return fmt.Errorf("failed to list sightings: %w", err)
	}

	detail := GroupDetail{
		ID:                   group.ID,
		MemberCount:          group.MemberCount,
		Clarity:              group.CanonicalClarity,
		HasEmbedding:         len(group.Embedding) > 0,
		RepresentativeImage:  group.RepresentativeImage,
		CanonicalDescription: group.CanonicalDescription,
		CreatedAt:            group.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            group.UpdatedAt.Format(time.RFC3339),
		Sightings:            make([]SightingInfo, 0, len(members)),
	}
	for _, s := range members {
		detail.Sightings = append(detail.Sightings, SightingInfo{
			ID:        s.ID,
			Clarity:   s.Clarity,
			ImageRef:  s.ImageRef,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		})
	}

	if jsonOutput {
		return outputJSON(detail)
	}

	fmt.Printf("Group %s\n", detail.ID)
	fmt.Printf("Members: %d, clarity %d/100, embedding: %v\n", detail.MemberCount, detail.Clarity, detail.HasEmbedding)
	if detail.RepresentativeImage != "" {
		fmt.Printf("Representative image: %s\n", detail.RepresentativeImage)
	}
	if summary := group.CanonicalDescription.NaturalSummary; summary != "" {
		fmt.Printf("\n%s\n", summary)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIGHTING\tCLARITY\tSEEN\tIMAGE")
	fmt.Fprintln(w, "--------\t-------\t----\t-----")
	for _, s := range detail.Sightings {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", s.ID, s.Clarity, s.CreatedAt, s.ImageRef)
	}
	w.Flush()

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
