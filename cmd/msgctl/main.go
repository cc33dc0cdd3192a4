// Command msgctl operates on a messaging database directly, without the HTTP
// server: create and delete users, send, reply, edit, and inspect threads,
// unread messages and notifications.
//
//	msgctl --db app.db user create --name Alice
//	msgctl --db app.db --as <alice-id> send --to <bob-id> --content "hi"
//	msgctl --db app.db --as <bob-id> unread
package main

import (
	"context"
	"io"
	"os"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// execute runs one msgctl invocation and always releases the database.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer func() { _ = a.close() }()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}
