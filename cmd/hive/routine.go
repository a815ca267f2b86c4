package main

import (
	"context"
	"fmt"
	"io"

	"github.com/mtzanidakis/hive/internal/navigator"
)

func runRoutine(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hive routine <file>")
	}
	routine, err := navigator.LoadRoutineFile(args[0])
	if err != nil {
		return err
	}

	reg := navigator.NewDefaultRegistry(nil)
	nav, starts, err := reg.Prepare(context.Background(), routine)
	if err != nil {
		return fmt.Errorf("prepare routine: %w", err)
	}
	id, err := nav.GenerateRoutineID(routine)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "routine:   %s\n", id)
	fmt.Fprintf(w, "navigator: %s\n", nav.Type())
	fmt.Fprintf(w, "version:   %v\n", routine["__version"])
	fmt.Fprintln(w, "start locations:")
	for _, loc := range starts {
		info, err := nav.StepInfo(loc)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %s (%s)", loc.NodeID, info.Type)
		if info.Name != "" {
			line += " " + info.Name
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
