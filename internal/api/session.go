package api

import (
	"fmt"

	"valorant-rolesync/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// NewSession builds the gateway session that delivers member-join events. It is
// opened by the fx lifecycle, not here.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.StateEnabled = false
	session.ShouldReconnectOnError = true

	return session, nil
}

func MemberFromGateway(m *discordgo.Member) domain.GuildMember {
	member := domain.GuildMember{
		Nick:     m.Nick,
		RoleIDs:  m.Roles,
		JoinedAt: m.JoinedAt,
	}
	if m.User != nil {
		member.ID = m.User.ID
		member.Username = m.User.Username
		member.GlobalName = m.User.GlobalName
		member.Bot = m.User.Bot
	}
	return member
}
