package cli

import (
	"fmt"
)

// Migrator is the subset of migration.Migrator used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

// MigrateCommand applies, rolls back or reports the schema version.
func MigrateCommand(m Migrator, action string, out Output) int {
	var err error
	switch action {
	case "", "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			err = verr
			break
		}
		_, _ = fmt.Fprintf(out.stdout(), "version %d dirty=%t\n", version, dirty)
	default:
		_, _ = fmt.Fprintf(out.stderr(), "migrate: unknown action %q (expected up, down or version)\n", action)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(out.stderr(), "migrate %s: %v\n", action, err)
		return 1
	}
	return 0
}
