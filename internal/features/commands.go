package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	musiccmd "github.com/hxnx/cardinal/internal/features/music/commands"
	"github.com/hxnx/cardinal/internal/features/ping"
	"github.com/hxnx/cardinal/internal/features/radio"
	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/rs/zerolog/log"
)

var (
	minVolume = 0.0

	CommandList = []*discordgo.ApplicationCommand{
		{
			Name:        "핑",
			Description: "봇 상태를 확인합니다",
		},
		{
			Name:        "라디오",
			Description: "라디오 채널을 설정합니다",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "시작",
					Description: "음성 채널에서 라디오를 재생합니다",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionChannel,
							Name:         "음성채널",
							Description:  "라디오를 재생할 음성 채널 (기본: 현재 입장한 채널)",
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice},
						},
						{
							Type:         discordgo.ApplicationCommandOptionChannel,
							Name:         "채팅채널",
							Description:  "곡 정보를 알릴 채널 (기본: 이 채널)",
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "주소",
							Description: "라디오 스트림 주소",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "해제",
					Description: "라디오 설정을 지우고 음성 채널에서 나갑니다",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "기록",
					Description: "최근 재생된 곡을 표시합니다",
				},
			},
		},
		{
			Name:        "노래",
			Description: "노래 재생/관리 명령어",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "재생",
					Description: "노래를 검색해 대기열에 추가합니다",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "검색어",
							Description: "노래 제목, URL 또는 local:<파일명>",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "정지",
					Description: "재생을 중지하고 대기열을 비웁니다",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "스킵",
					Description: "현재 곡을 건너뜁니다",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "일시정지",
					Description: "재생을 일시정지하거나 다시 재생합니다",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "볼륨",
					Description: "볼륨을 확인하거나 설정합니다",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "크기",
							Description: "0-100",
							MinValue:    &minVolume,
							MaxValue:    100,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "대기열",
					Description: "현재 대기열을 표시합니다",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "limit",
							Description: "페이지당 곡 수",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "반복",
					Description: "반복 모드를 설정합니다",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "모드",
							Description: "꺼짐/곡/대기열",
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "꺼짐", Value: string(music.RepeatModeNone)},
								{Name: "곡 반복", Value: string(music.RepeatModeTrack)},
								{Name: "대기열 반복", Value: string(music.RepeatModeQueue)},
							},
						},
					},
				},
			},
		},
	}
)

type router struct {
	music *musiccmd.Handlers
	radio *radio.Handlers
}

func (r *router) handleMusic(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	switch sub.Name {
	case "재생":
		r.music.Play(s, i, sub.Options)
	case "정지":
		r.music.Stop(s, i)
	case "스킵":
		r.music.Skip(s, i)
	case "일시정지":
		r.music.Pause(s, i)
	case "볼륨":
		r.music.Volume(s, i, sub.Options)
	case "대기열":
		r.music.Queue(s, i, sub.Options)
	case "반복":
		r.music.Repeat(s, i, sub.Options)
	default:
		shared.RespondEphemeral(s, i, "지원하지 않는 노래 명령입니다.")
	}
}

func (r *router) handleRadio(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	switch sub.Name {
	case "시작":
		r.radio.Start(s, i, sub.Options)
	case "해제":
		r.radio.Unbind(s, i)
	case "기록":
		r.radio.History(s, i)
	default:
		shared.RespondEphemeral(s, i, "지원하지 않는 라디오 명령입니다.")
	}
}

func (r *router) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name == "핑" {
		ping.Command(s, i)
		return
	}

	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "이 명령어는 서버에서만 사용할 수 있습니다.")
		return
	}

	sub := shared.GetSubcommand(data.Options)
	if sub == nil {
		shared.RespondEphemeral(s, i, "사용할 명령을 선택해 주세요.")
		return
	}

	switch data.Name {
	case "노래":
		r.handleMusic(s, i, sub)
	case "라디오":
		r.handleRadio(s, i, sub)
	}
}

func RegisterCommands(s *discordgo.Session, appID string, guildID string) ([]*discordgo.ApplicationCommand, error) {
	scope := "global"
	if guildID != "" {
		scope = fmt.Sprintf("guild:%s", guildID)
	}

	log.Info().Int("count", len(CommandList)).Str("scope", scope).Msg("registering commands")

	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, CommandList)
	if err != nil {
		return nil, fmt.Errorf("cannot bulk overwrite commands: %w", err)
	}
	return cmds, nil
}

func AddHandlers(s *discordgo.Session, app *shared.App) {
	r := &router{
		music: musiccmd.New(app),
		radio: radio.New(app),
	}

	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleCommand(s, i)
		case discordgo.InteractionMessageComponent:
			if ping.Route(s, i) {
				return
			}
			r.music.QueuePage(s, i)
		}
	})
}
