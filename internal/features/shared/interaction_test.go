package shared

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "짧은 글", Truncate("짧은 글", 10))
	assert.Equal(t, "가나…", Truncate("가나다라", 3))
	assert.Equal(t, "a", Truncate("abc", 1))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestOptions(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "검색어", Type: discordgo.ApplicationCommandOptionString, Value: "lofi"},
		{Name: "크기", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(42)},
		{Name: "채널", Type: discordgo.ApplicationCommandOptionChannel, Value: "123"},
		{Name: "재생", Type: discordgo.ApplicationCommandOptionSubCommand},
	}

	assert.Equal(t, "lofi", GetOptionString(options, "검색어"))
	assert.Empty(t, GetOptionString(options, "없음"))

	n, ok := GetOptionInt64(options, "크기")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	_, ok = GetOptionInt64(options, "없음")
	assert.False(t, ok)

	assert.Equal(t, "123", GetOptionChannelID(options, "채널"))
	assert.Empty(t, GetOptionChannelID(options, "검색어"))

	sub := GetSubcommand(options)
	require.NotNil(t, sub)
	assert.Equal(t, "재생", sub.Name)
}

func TestGetInteractionUserID(t *testing.T) {
	assert.Empty(t, GetInteractionUserID(nil))

	member := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "m"}},
	}}
	assert.Equal(t, "m", GetInteractionUserID(member))

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "u"},
	}}
	assert.Equal(t, "u", GetInteractionUserID(dm))
}
