package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/pkg/database"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

func newMemberCmd(cfg func() *config.Config) *cobra.Command {
	member := &cobra.Command{
		Use:   "member",
		Short: "Manage chat room membership used when chat.require_membership is on",
	}

	var chatRoomID, userID int64
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to a chat room",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatRoomID <= 0 || userID <= 0 {
				return fmt.Errorf("--room and --user must be positive")
			}

			ctx := log.WithLogger(cmd.Context(), log.L())
			l := log.Ctx(ctx)

			c := cfg()
			db, err := database.New(&c.Database)
			if err != nil {
				return err
			}
			defer func() {
				if sqlDB, err := db.DB(); err == nil {
					sqlDB.Close()
				}
			}()
			if err := database.AutoMigrate(db, domain.Models()...); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			if err := repository.NewGormMemberRepository(db).AddMember(ctx, chatRoomID, userID); err != nil {
				return err
			}
			l.Info().Int64(log.FieldRoomID, chatRoomID).Int64(log.FieldUserID, userID).Msg("member added")
			return nil
		},
	}
	add.Flags().Int64Var(&chatRoomID, "room", 0, "chat room id")
	add.Flags().Int64Var(&userID, "user", 0, "user id")

	member.AddCommand(add)
	return member
}
