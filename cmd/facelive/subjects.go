package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/storage"
)

func newSubjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage enrolled subjects",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List enrolled subjects",
			Args:  exactArgs(0),
			RunE:  a.runSubjectsList,
		},
		&cobra.Command{
			Use:   "delete <subject>",
			Short: "Remove a subject and all its enrollments",
			Args:  exactArgs(1),
			RunE:  a.runSubjectsDelete,
		},
	)
	return cmd
}

func (a *app) runSubjectsList(cmd *cobra.Command, _ []string) error {
	logging.Debug("Listing enrolled subjects")

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	subjects, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(subjects) == 0 {
		fmt.Fprintln(out, "No subjects enrolled.")
		return nil
	}

	fmt.Fprintln(out, "Enrolled subjects:")
	for _, s := range subjects {
		fmt.Fprintf(out, "  - %-32s %d enrollment(s), updated %s\n",
			s.ID, len(s.Enrollments), s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "\nTotal: %d subject(s)\n", len(subjects))
	return nil
}

func (a *app) runSubjectsDelete(cmd *cobra.Command, args []string) error {
	subject := args[0]
	if err := storage.ValidateSubject(subject); err != nil {
		return usageError(err)
	}

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Delete(cmd.Context(), subject); err != nil {
		return err
	}

	logging.WithField("subject", subject).Info("Subject removed")
	fmt.Fprintf(cmd.OutOrStdout(), "Face data for '%s' has been removed.\n", subject)
	return nil
}
