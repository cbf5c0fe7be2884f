package cli

import (
	"flag"
	"fmt"
)

func newCanAssignCommand() *Command {
	cmd := &Command{
		Name:        "can-assign",
		Description: "Check whether one role may assign another",
		Flags:       flag.NewFlagSet("can-assign", flag.ExitOnError),
		Run:         runCanAssign,
	}

	cmd.Flags.String("assigner", "", "Role doing the assignment")
	cmd.Flags.String("target", "", "Role being assigned")
	addRolesFlag(cmd.Flags)

	return cmd
}

func runCanAssign(args []string) error {
	cmd := newCanAssignCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	assigner := stringFlag(cmd.Flags, "assigner")
	target := stringFlag(cmd.Flags, "target")
	if assigner == "" || target == "" {
		return fmt.Errorf("assigner and target are required")
	}

	roles, err := loadRoles(cmd.Flags)
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}

	ok, err := roles.CanAssign(assigner, target)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(output, "%s may assign %s\n", assigner, target)
	} else {
		fmt.Fprintf(output, "%s may not assign %s\n", assigner, target)
	}
	return nil
}
