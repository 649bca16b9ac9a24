package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/KushagraAgarwal525/racoon/internal/model"
)

func init() {
	usersCmd := &cobra.Command{Use: "users", Short: "User operations"}

	// create
	var userID, name, email, photo string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := newClient().CreateUser(cmdContext(cmd), model.User{
				UserID: userID, DisplayName: name, Email: email, PhotoURL: photo,
			})
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, u)
		},
	}
	createCmd.Flags().StringVarP(&userID, "userId", "u", "", "UserID (required)")
	createCmd.Flags().StringVarP(&name, "name", "n", "", "Display name (required)")
	createCmd.Flags().StringVarP(&email, "email", "e", "", "User email")
	createCmd.Flags().StringVarP(&photo, "photo", "p", "", "Photo URL")
	_ = createCmd.MarkFlagRequired("userId")
	_ = createCmd.MarkFlagRequired("name")
	usersCmd.AddCommand(createCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get USER_ID",
		Short: "Get user by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := newClient().GetUser(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, u)
		},
	}
	usersCmd.AddCommand(getCmd)

	// check
	checkCmd := &cobra.Command{
		Use:   "check USER_ID",
		Short: "Report whether a user exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := newClient().UserExists(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, map[string]interface{}{"userId": args[0], "exists": ok})
		},
	}
	usersCmd.AddCommand(checkCmd)

	// health
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newClient().Health(cmdContext(cmd))
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, h)
		},
	}

	rootCmd.AddCommand(usersCmd, healthCmd)
}
