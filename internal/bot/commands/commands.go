package commands

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/feasibility"
	"github.com/jensholdgaard/squad-auction/internal/squad"
	"github.com/jensholdgaard/squad-auction/internal/telemetry"
)

// Auctioneer is the auction manager as seen by the command handlers.
type Auctioneer interface {
	StartRound(ctx context.Context, playerID string) (squad.Round, error)
	PlaceBid(ctx context.Context, teamID string, amount, expectedVersion int64) (squad.Round, error)
	Raise(ctx context.Context, teamID string, increment int64) (squad.Round, error)
	UndoBid(ctx context.Context) (squad.Round, error)
	Sell(ctx context.Context) (squad.Settlement, error)
	Pass(ctx context.Context) error
	CancelRound(ctx context.Context) error
	ReleasePlayer(ctx context.Context, playerID, teamID string) error
	UpdateTeamBudget(ctx context.Context, teamID string, total int64) error
	Snapshot() (*squad.Snapshot, error)
	Eligibility(ctx context.Context, teamID string, amount int64) (feasibility.Verdict, error)
	Reserve(ctx context.Context, teamID string) (auction.TeamReserve, error)
}

// Reply is the response to one interaction.
type Reply struct {
	Content string
	// Ephemeral replies are only shown to the invoking user.
	Ephemeral bool
}

// Handlers process Discord interactions.
type Handlers struct {
	mgr            Auctioneer
	auctioneerRole string
	logger         *slog.Logger
	tracer         trace.Tracer
}

// NewHandlers creates new command handlers. State-changing commands are
// limited to members holding auctioneerRole, unless it is empty.
func NewHandlers(mgr Auctioneer, auctioneerRole string, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		mgr:            mgr,
		auctioneerRole: auctioneerRole,
		logger:         logger,
		tracer:         tp.Tracer("github.com/jensholdgaard/squad-auction/internal/bot/commands"),
	}
}

// result is a reply, or an error to be turned into one.
type result struct {
	Reply
	err error
}

type handlerFunc func(h *Handlers, ctx context.Context, opts options) result

type command struct {
	def *discordgo.ApplicationCommand
	// restricted commands change auction state.
	restricted bool
	run        handlerFunc
}

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func intOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

var registry = []command{
	{
		def: &discordgo.ApplicationCommand{
			Name:        "round-start",
			Description: "Put a player on the block",
			Options:     []*discordgo.ApplicationCommandOption{stringOpt("player", "Player ID", true)},
		},
		restricted: true,
		run:        (*Handlers).handleRoundStart,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "bid",
			Description: "Bid for a team",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("team", "Team ID", true),
				intOpt("amount", "Bid amount", true),
				intOpt("version", "Round version you saw in /round (optional)", false),
			},
		},
		restricted: true,
		run:        (*Handlers).handleBid,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "raise",
			Description: "Raise the current bid for a team",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("team", "Team ID", true),
				intOpt("increment", "Increment (default: the usual step for this player)", false),
			},
		},
		restricted: true,
		run:        (*Handlers).handleRaise,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "undo",
			Description: "Revert the last bid",
		},
		restricted: true,
		run:        (*Handlers).handleUndo,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "sell",
			Description: "Sell the player to the leading team",
		},
		restricted: true,
		run:        (*Handlers).handleSell,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "pass",
			Description: "Mark the player on the block as unsold",
		},
		restricted: true,
		run:        (*Handlers).handlePass,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "round-cancel",
			Description: "Abandon the round without changing the player",
		},
		restricted: true,
		run:        (*Handlers).handleRoundCancel,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "release",
			Description: "Release a sold player and refund the team",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("player", "Player ID", true),
				stringOpt("team", "Team ID", true),
			},
		},
		restricted: true,
		run:        (*Handlers).handleRelease,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "team-budget",
			Description: "Change a team's total budget",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("team", "Team ID", true),
				intOpt("total", "New total budget", true),
			},
		},
		restricted: true,
		run:        (*Handlers).handleTeamBudget,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "round",
			Description: "Show the round in progress",
		},
		run: (*Handlers).handleRound,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "squad",
			Description: "Show a team's squad, purse and reserve",
			Options:     []*discordgo.ApplicationCommandOption{stringOpt("team", "Team ID", true)},
		},
		run: (*Handlers).handleSquad,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "can-bid",
			Description: "Check whether a team may bid an amount",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("team", "Team ID", true),
				intOpt("amount", "Bid amount", true),
			},
		},
		run: (*Handlers).handleCanBid,
	},
	{
		def: &discordgo.ApplicationCommand{
			Name:        "history",
			Description: "Show the latest sales",
		},
		run: (*Handlers).handleHistory,
	},
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, len(registry))
	for i, c := range registry {
		defs[i] = c.def
	}
	return defs
}

func lookup(name string) (command, bool) {
	for _, c := range registry {
		if c.def.Name == name {
			return c, true
		}
	}
	return command{}, false
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	reply := h.Handle(context.Background(), i)

	data := &discordgo.InteractionResponseData{Content: reply.Content}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		h.logger.Error("failed to respond to interaction", slog.Any("error", err))
	}
}

// Handle runs the slash command carried by i and returns the reply.
func (h *Handlers) Handle(ctx context.Context, i *discordgo.InteractionCreate) Reply {
	data := i.ApplicationCommandData()
	ctx, span := h.tracer.Start(ctx, "InteractionCreate",
		trace.WithAttributes(attribute.String("command", data.Name)),
	)
	defer span.End()

	logger := telemetry.LogWithTrace(ctx, h.logger)

	cmd, ok := lookup(data.Name)
	if !ok {
		return Reply{Content: "Unknown command", Ephemeral: true}
	}
	if cmd.restricted && !h.authorized(i.Member) {
		logger.WarnContext(ctx, "unauthorized command", slog.String("command", data.Name))
		return Reply{Content: "Only auctioneers can use this command.", Ephemeral: true}
	}

	reply := cmd.run(h, ctx, newOptions(data.Options))
	if reply.err != nil {
		return h.failure(ctx, logger, data.Name, reply.err)
	}
	return reply.Reply
}

func (h *Handlers) authorized(m *discordgo.Member) bool {
	if h.auctioneerRole == "" {
		return true
	}
	if m == nil {
		return false
	}
	for _, r := range m.Roles {
		if r == h.auctioneerRole {
			return true
		}
	}
	return false
}

// options indexes command options by name.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func newOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o options) num(name string, fallback int64) int64 {
	if opt, ok := o[name]; ok {
		return opt.IntValue()
	}
	return fallback
}
