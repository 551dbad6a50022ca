package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TaomasSpace/clubhall-guard/internal/clock"
	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/internal/config"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
	"github.com/TaomasSpace/clubhall-guard/pkg/jobmgr"
)

// registerInterval spaces command uploads below Discord's create limit.
const registerInterval = time.Second / 40

// Bot is a Discord bot
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	services *command.Services
	registry *cmd.Registry
	watcher  *watcher
	cache    commandCache
	jobs     *jobmgr.Manager
	log      zerolog.Logger

	ctx context.Context
}

// NewSession creates an unopened session with the intents the guard needs.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildWebhooks |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions
	dg.StateEnabled = true
	return dg, nil
}

// NewBot wires the gateway handlers to the services. Commands are taken
// from registry.
func NewBot(dg *discordgo.Session, cfg *config.Config, services *command.Services, registry *cmd.Registry, log zerolog.Logger) *Bot {
	if services.Responder == nil {
		services.Responder = DefaultResponder
	}
	return &Bot{
		dg:       dg,
		cfg:      cfg,
		services: services,
		registry: registry,
		watcher: newWatcher(dg, stateInfo{s: dg}, services.Guard, services.Actions,
			services.Storage, clock.Real{}, log),
		cache: commandCache{dir: cfg.CommandCacheDir},
		log:   log.With().Str("component", "bot").Logger(),
		ctx:   context.Background(),
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.jobs = jobmgr.NewManager(ctx, func(status string) {
		b.log.Debug().Str("job", status).Msg("job status")
	})

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onGuildDelete)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) { b.watcher.message(b.ctx, e.Message) })
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleDelete) { b.watcher.onRoleDelete(b.ctx, e) })
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleCreate) { b.watcher.onRoleCreate(b.ctx, e) })
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildBanAdd) { b.watcher.onBanAdd(b.ctx, e) })
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) { b.watcher.onMemberRemove(b.ctx, e) })
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) { b.watcher.onChannelDelete(b.ctx, e) })
	b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.WebhooksUpdate) { b.watcher.onWebhooksUpdate(b.ctx, e) })

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing gateway")
	b.jobs.Wait()
	return b.dg.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

// onGuildCreate fires for every guild at startup and when the bot joins one.
func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
	if !b.cfg.InitSlashCommands {
		return
	}
	guildID := g.ID
	err := b.jobs.StartAsync("register:"+guildID, func(ctx context.Context) error {
		if err := b.registerCommands(ctx, guildID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Msg("failed to register commands")
			return err
		}
		return nil
	})
	if err != nil {
		b.log.Debug().Err(err).Str("guild", guildID).Msg("registration already in progress")
	}
}

// onGuildDelete drops guard state when the bot leaves a guild. Outages
// arrive with Unavailable set and keep the state.
func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	b.services.Guard.Reset(g.ID)
	b.log.Info().Str("guild", g.ID).Msg("removed from guild")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.CommandType != discordgo.ChatApplicationCommand {
		return
	}

	c := b.registry.Get(data.Name)
	if c == nil {
		b.log.Warn().Str("command", data.Name).Msg("unknown command")
		return
	}

	ctx := &command.SlashInteractionContext{Session: s, Event: i, Services: b.services}
	if err := c.Run(b.ctx, &cmd.Invocation{Data: ctx}); err != nil {
		b.log.Error().Err(err).Str("command", data.Name).Msg("error running slash command")
		_ = ctx.Reply(fmt.Sprintf("Error running command: %v", err))
	}
}

// registerCommands uploads new or changed definitions and deletes commands
// the bot no longer has.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	appID, err := b.appID(ctx)
	if err != nil {
		return err
	}

	existing, err := b.dg.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}
	hashes, err := b.cache.load(guildID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("ignoring command cache")
	}

	wanted := make(map[string]*discordgo.ApplicationCommand)
	for _, c := range b.registry.GetAll() {
		if def := command.Definition(c); def != nil {
			wanted[def.Name] = def
		}
	}

	deployed := make(map[string]bool, len(existing))
	for _, old := range existing {
		if _, ok := wanted[old.Name]; ok {
			deployed[old.Name] = true
			continue
		}
		b.log.Info().Str("guild", guildID).Str("command", old.Name).Msg("deleting obsolete command")
		if err := b.dg.ApplicationCommandDelete(appID, guildID, old.ID, discordgo.WithContext(ctx)); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", old.Name).Msg("failed to delete command")
		}
		delete(hashes, old.Name)
	}

	var changed []*discordgo.ApplicationCommand
	for name, def := range wanted {
		if !deployed[name] || hashes[name] != hashCommand(def) {
			changed = append(changed, def)
		}
	}
	if len(changed) > 0 {
		b.log.Info().Str("guild", guildID).Int("commands", len(changed)).Msg("updating commands")
		for name, hash := range b.createCommands(ctx, appID, guildID, changed) {
			hashes[name] = hash
		}
	}

	return b.cache.save(guildID, hashes)
}

// createCommands uploads definitions at registerInterval and returns the
// hashes of those that succeeded.
func (b *Bot) createCommands(ctx context.Context, appID, guildID string, defs []*discordgo.ApplicationCommand) map[string]string {
	ticker := time.NewTicker(registerInterval)
	defer ticker.Stop()

	results := make([]string, len(defs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, def := range defs {
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def, discordgo.WithContext(ctx)); err != nil {
				b.log.Error().Err(err).Str("guild", guildID).Str("command", def.Name).Msg("can't create command")
				return nil
			}
			results[i] = hashCommand(def)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(defs))
	for i, def := range defs {
		if results[i] != "" {
			out[def.Name] = results[i]
		}
	}
	return out
}

func (b *Bot) appID(ctx context.Context) (string, error) {
	if b.dg.State != nil && b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	user, err := b.dg.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch bot user: %w", err)
	}
	return user.ID, nil
}
