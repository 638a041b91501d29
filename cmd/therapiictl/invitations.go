package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/repository"
	"github.com/therapii/api-server-go/internal/util"
)

var invitationsCommand = cobra.Command{
	Use:   "invitations",
	Short: "Inspect invitation codes",
}

var (
	listTherapistID string
	listPatientID   string
	listAccepted    bool
	listShowCodes   bool
)

var listInvitationsCommand = cobra.Command{
	Use:   "ls",
	Short: "Lists invitations of a therapist or patient",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := listQuery()
		if err != nil {
			return err
		}

		db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := repository.NewInvitationRepository(db.DB).ListByOwner(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("load invitations: %w", err)
		}
		return printInvitations(cmd.OutOrStdout(), entries, time.Now(), listShowCodes)
	},
}

func init() {
	flags := listInvitationsCommand.Flags()
	flags.StringVar(&listTherapistID, "therapist", "", "therapist id")
	flags.StringVar(&listPatientID, "patient", "", "patient id")
	flags.BoolVar(&listAccepted, "accepted", false, "only redeemed invitations")
	flags.BoolVar(&listShowCodes, "show-codes", false, "print codes unmasked")
}

func listQuery() (model.ListInvitationsQuery, error) {
	switch {
	case listTherapistID != "" && listPatientID != "":
		return model.ListInvitationsQuery{}, errors.New("use either --therapist or --patient")
	case listTherapistID != "":
		return model.ListInvitationsQuery{TherapistID: listTherapistID, AcceptedOnly: listAccepted}, nil
	case listPatientID != "":
		return model.ListInvitationsQuery{PatientID: listPatientID, AcceptedOnly: true}, nil
	default:
		return model.ListInvitationsQuery{}, errors.New("--therapist or --patient is required")
	}
}

func printInvitations(out io.Writer, entries []model.InvitationCode, now time.Time, showCodes bool) error {
	w := tabwriter.NewWriter(out, 1, 1, 1, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", "ID", "Code", "Email", "Status", "CreatedAt", "ExpiresAt")

	for _, v := range entries {
		code := util.MaskCode(v.Code)
		if showCodes {
			code = v.Code
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, code, v.PatientEmail, invitationStatus(v, now),
			v.CreatedAt.UTC().Format(time.RFC3339), v.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%d entries loaded\n", len(entries))
	return w.Flush()
}

func invitationStatus(v model.InvitationCode, now time.Time) string {
	switch {
	case v.IsUsed:
		return "used"
	case v.IsExpired(now):
		return "expired"
	default:
		return "open"
	}
}
