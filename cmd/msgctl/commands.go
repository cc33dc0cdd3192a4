package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-messaging-backend/internal/domain"
)

// newRootCmd builds the command tree bound to a. The caller closes a once
// the command has run.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "msgctl",
		Short:         "Operate on a messaging database from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default $DB_PATH or app.db)")
	root.PersistentFlags().StringVar(&a.as, "as", "", "acting user id (default $MSGCTL_AS)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug|info|warn|error (default $LOG_LEVEL or warn)")

	root.AddCommand(
		newUserCmd(a),
		newSendCmd(a),
		newReplyCmd(a),
		newEditCmd(a),
		newReadCmd(a),
		newThreadCmd(a),
		newHistoryCmd(a),
		newUnreadCmd(a),
		newNotificationsCmd(a),
	)
	return root
}

// --- users ---

func newUserCmd(a *app) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var name, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.eng.Users.Create(ctxOf(cmd), name, role)
			if err != nil {
				return err
			}
			return printJSON(cmd, u)
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&role, "role", domain.RoleGuest, "guest|host|admin")
	_ = create.MarkFlagRequired("name")

	get := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Print a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.eng.Users.Get(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, u)
		},
	}

	del := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user with their messages, notifications and history",
		Long: `Delete a user. Every message the user sent or received is removed,
together with the replies below it, the notifications about them and their
edit history. Messages the user only edited survive with the editor cleared.
Acting as someone else requires the admin role.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := a.as
			if actor == "" {
				actor = args[0]
			}
			if err := a.eng.Users.Delete(ctxOf(cmd), actor, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}

	user.AddCommand(create, get, del)
	return user
}

// --- messages ---

func newSendCmd(a *app) *cobra.Command {
	var to, content, parent string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message as --as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := a.actor()
			if err != nil {
				return err
			}
			var parentID *string
			if parent != "" {
				parentID = &parent
			}
			m, err := a.eng.Messages.Create(ctxOf(cmd), from, to, content, parentID)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "receiver user id (may be omitted with --parent)")
	cmd.Flags().StringVar(&content, "content", "", "message text")
	cmd.Flags().StringVar(&parent, "parent", "", "parent message id for a reply")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newReplyCmd(a *app) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "reply <parent-id>",
		Short: "Reply to a message as --as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := a.actor()
			if err != nil {
				return err
			}
			m, err := a.eng.Messages.Reply(ctxOf(cmd), from, args[0], content)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "reply text")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "edit <message-id>",
		Short: "Edit a message as --as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := a.actor()
			if err != nil {
				return err
			}
			m, err := a.eng.Messages.Edit(ctxOf(cmd), args[0], content, editor)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new text")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Mark a received message read as --as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := a.actor()
			if err != nil {
				return err
			}
			m, err := a.eng.Messages.MarkRead(ctxOf(cmd), uid, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
}

// --- derived views ---

func newThreadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "thread <root-id>",
		Short: "Print the reply tree under a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := a.eng.Threads.Build(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, tree)
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <message-id>",
		Short: "Print previous versions of a message, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.eng.History.List(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
}

func newUnreadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print unread messages for --as, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := a.actor()
			if err != nil {
				return err
			}
			items, err := a.eng.Unread.For(ctxOf(cmd), uid)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
}

func newNotificationsCmd(a *app) *cobra.Command {
	var unreadOnly bool
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Print notifications for --as, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := a.actor()
			if err != nil {
				return err
			}
			items, _, err := a.eng.Notifications.List(ctxOf(cmd), uid, unreadOnly, page, pageSize)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread notifications")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "items per page")
	return cmd
}
