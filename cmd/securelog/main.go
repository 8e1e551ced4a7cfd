// Command securelog runs the permissioned error message network against
// a local SQLite ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/patdav1503/securelog-msg-network/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
