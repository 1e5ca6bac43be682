package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/arena"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/config"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/matching"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/rps"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/tictactoe"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/stats"
)

type bot struct {
	cfg    *config.AppConfig
	mgr    *arena.Manager
	reg    *gamekit.Registry
	stats  *stats.Service
	cat    *msgcat.Catalog
	egress irisfast.Egress
}

func (b *bot) handleMessage(msg *irisfast.Message) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), b.cfg.BotPrefix))
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	room := msg.Room
	user := arena.PlayerRef{ID: msg.UserID(), Name: msg.UserName()}
	if user.ID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "challenge", "duel":
		err = b.cmdChallenge(ctx, room, user, args)
	case "accept":
		err = b.mgr.Respond(ctx, room, user.ID, true)
	case "decline":
		err = b.mgr.Respond(ctx, room, user.ID, false)
	case "move", "flip", "pick", "play":
		if len(args) == 0 {
			b.reply(room, "errors.usage_move", map[string]any{"Prefix": b.cfg.BotPrefix})
			return
		}
		err = b.mgr.Submit(ctx, room, user.ID, strings.Join(args, " "))
	case "board", "game":
		b.cmdBoard(room, user.ID)
	case "endgame", "end":
		err = b.mgr.RequestEnd(ctx, room, user.ID)
	case "yes":
		err = b.mgr.RespondEnd(ctx, room, user.ID, true)
	case "no":
		err = b.mgr.RespondEnd(ctx, room, user.ID, false)
	case "resign", "giveup":
		err = b.mgr.Resign(ctx, room, user.ID)
	case "games":
		b.cmdGames(room)
	case "active":
		b.cmdActive(room)
	case "stats", "record":
		err = b.cmdStats(ctx, room, user, args)
	case "leaderboard", "lb", "ranking":
		err = b.cmdLeaderboard(ctx, room, args)
	case "help":
		b.cmdHelp(room, args)
	default:
		b.cmdHelp(room, nil)
	}
	if err != nil {
		b.replyErr(room, err)
	}
}

func (b *bot) cmdChallenge(ctx context.Context, room string, challenger arena.PlayerRef, args []string) error {
	if len(args) < 2 {
		b.reply(room, "errors.usage_challenge", map[string]any{"Prefix": b.cfg.BotPrefix})
		return nil
	}
	target := strings.TrimPrefix(args[0], "@")
	if target == "" {
		b.reply(room, "errors.usage_challenge", map[string]any{"Prefix": b.cfg.BotPrefix})
		return nil
	}
	gameTypeID, ok := parseGameType(args[1])
	if !ok {
		return gamekit.ErrUnknownGameType
	}
	category := ""
	if len(args) > 2 {
		category = args[2]
	}
	challenged := arena.PlayerRef{ID: target, Name: target}
	return b.mgr.Challenge(ctx, room, challenger, challenged, gameTypeID, category)
}

func (b *bot) cmdBoard(room, userID string) {
	view, ok := b.mgr.SessionFor(room, userID)
	if !ok {
		b.reply(room, "errors.no_active_session", nil)
		return
	}
	data := map[string]any{"Board": view.Board, "Turn": view.TurnPlayer().Name, "Note": ""}
	if rules, err := b.reg.Get(view.GameTypeID); err == nil && rules.Simultaneous() {
		b.reply(room, "session.update_simultaneous", data)
		return
	}
	b.reply(room, "session.update", data)
}

func (b *bot) cmdGames(room string) {
	var sb strings.Builder
	sb.WriteString(b.cat.RenderOr("games.header", "Available games:", nil))
	for _, rules := range b.reg.List() {
		sb.WriteString("\n")
		sb.WriteString(b.cat.RenderOr("games.row",
			fmt.Sprintf("%d %s", rules.ID(), rules.Name()),
			map[string]any{"ID": rules.ID(), "Name": rules.Name()}))
	}
	sb.WriteString("\n")
	sb.WriteString(b.cat.RenderOr("games.footer", "", map[string]any{"Prefix": b.cfg.BotPrefix}))
	b.sendText(room, sb.String())
}

func (b *bot) cmdActive(room string) {
	var lines []string
	for _, v := range b.mgr.ActiveSessions() {
		if v.Room != room {
			continue
		}
		lines = append(lines, b.cat.RenderOr("active.row",
			fmt.Sprintf("%s: %s vs %s", v.GameName, v.Players[0].Name, v.Players[1].Name),
			map[string]any{
				"Game":    v.GameName,
				"Player0": v.Players[0].Name,
				"Player1": v.Players[1].Name,
				"Turn":    v.TurnPlayer().Name,
			}))
	}
	if len(lines) == 0 {
		b.reply(room, "active.empty", map[string]any{"Prefix": b.cfg.BotPrefix})
		return
	}
	header := b.cat.RenderOr("active.header", "Active games:", nil)
	b.sendText(room, header+"\n"+strings.Join(lines, "\n"))
}

func (b *bot) cmdStats(ctx context.Context, room string, user arena.PlayerRef, args []string) error {
	scope := stats.Scope{ServerID: room}
	var gameIDs []int
	for _, a := range args {
		if strings.EqualFold(a, "global") {
			scope = stats.Scope{Global: true}
			continue
		}
		id, ok := parseGameType(a)
		if !ok {
			return gamekit.ErrUnknownGameType
		}
		gameIDs = append(gameIDs, id)
	}
	if len(gameIDs) == 0 {
		for _, rules := range b.reg.List() {
			gameIDs = append(gameIDs, rules.ID())
		}
	}

	var sb strings.Builder
	played := 0
	for _, id := range gameIDs {
		ps, err := b.stats.PlayerStats(ctx, user.ID, user.Name, id, scope)
		if err != nil {
			return err
		}
		if ps.Played == 0 {
			continue
		}
		played += ps.Played
		rules, _ := b.reg.Get(id)
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.cat.RenderOr("stats.header", ps.PlayerName, map[string]any{
			"Name": ps.PlayerName, "Game": rules.Name(), "Global": scope.Global,
		}))
		sb.WriteString("\n")
		sb.WriteString(b.cat.RenderOr("stats.line", "", map[string]any{
			"Wins": ps.Wins, "Losses": ps.Losses, "Draws": ps.Draws,
			"Abandons": ps.Abandons, "Played": ps.Played,
			"WinRatePct": ps.WinRate * 100,
		}))
	}
	if played == 0 {
		b.reply(room, "stats.empty", map[string]any{"Prefix": b.cfg.BotPrefix})
		return nil
	}
	b.sendText(room, sb.String())
	return nil
}

func (b *bot) cmdLeaderboard(ctx context.Context, room string, args []string) error {
	if len(args) == 0 {
		return gamekit.ErrUnknownGameType
	}
	gameTypeID, ok := parseGameType(args[0])
	if !ok {
		return gamekit.ErrUnknownGameType
	}
	scope := stats.Scope{ServerID: room}
	page := 1
	for _, a := range args[1:] {
		if strings.EqualFold(a, "global") {
			scope = stats.Scope{Global: true}
			continue
		}
		if n, err := strconv.Atoi(a); err == nil {
			page = n
		}
	}

	lb, err := b.stats.Leaderboard(ctx, gameTypeID, scope, page)
	if err != nil {
		return err
	}
	rules, _ := b.reg.Get(gameTypeID)
	if len(lb.Rows) == 0 {
		b.reply(room, "leaderboard.empty", map[string]any{"Game": rules.Name()})
		return nil
	}

	var sb strings.Builder
	sb.WriteString(b.cat.RenderOr("leaderboard.header", rules.Name(), map[string]any{
		"Game": rules.Name(), "Global": scope.Global,
		"Page": lb.Page, "TotalPages": lb.TotalPages,
	}))
	for _, row := range lb.Rows {
		name := row.PlayerName
		if name == "" {
			name = row.PlayerID
		}
		sb.WriteString("\n")
		sb.WriteString(b.cat.RenderOr("leaderboard.row",
			fmt.Sprintf("%d. %s", row.Rank, name),
			map[string]any{
				"Rank": row.Rank, "Name": name,
				"Wins": row.Wins, "Losses": row.Losses,
				"WinRatePct": row.WinRate * 100,
			}))
	}
	b.sendText(room, sb.String())
	return nil
}

func (b *bot) cmdHelp(room string, args []string) {
	if len(args) > 0 {
		if id, ok := parseGameType(args[0]); ok {
			rules, err := b.reg.Get(id)
			if err == nil {
				text := b.cat.RenderOr("help.game", rules.Help(), map[string]any{
					"Game": rules.Name(), "Help": rules.Help(),
				})
				if id == matching.GameTypeID {
					text += "\n" + b.cat.RenderOr("help.categories", "", map[string]any{
						"Categories": strings.Join(matching.CategoryNames(), ", "),
					})
				}
				b.sendText(room, text)
				return
			}
		}
	}
	b.reply(room, "help.general", map[string]any{"Prefix": b.cfg.BotPrefix})
}

// parseGameType resolves a numeric id or alias.
func parseGameType(s string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "match", "memory", "matching":
		return matching.GameTypeID, true
	case "ttt", "tictactoe", "tic-tac-toe":
		return tictactoe.GameTypeID, true
	case "rps", "rockpaperscissors":
		return rps.GameTypeID, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	switch n {
	case matching.GameTypeID, tictactoe.GameTypeID, rps.GameTypeID:
		return n, true
	}
	return 0, false
}

func (b *bot) replyErr(room string, err error) {
	key := "errors.internal"
	data := map[string]any{"Prefix": b.cfg.BotPrefix}
	switch {
	case errors.Is(err, arena.ErrScopeBusy):
		key = "errors.scope_busy"
	case errors.Is(err, arena.ErrSelfChallenge):
		key = "errors.self_challenge"
	case errors.Is(err, gamekit.ErrUnknownGameType):
		key = "errors.unknown_game"
	case errors.Is(err, arena.ErrNoPendingChallenge):
		key = "errors.no_pending_challenge"
	case errors.Is(err, arena.ErrNotChallenged):
		key = "errors.not_challenged"
	case errors.Is(err, arena.ErrNoActiveSession):
		key = "errors.no_active_session"
	case errors.Is(err, arena.ErrNotYourTurn):
		key = "errors.not_your_turn"
	case errors.Is(err, gamekit.ErrAlreadySubmitted):
		key = "errors.already_submitted"
	case errors.Is(err, gamekit.ErrIllegalMove):
		key = "errors.illegal_move"
		data["Reason"] = err.Error()
	case errors.Is(err, arena.ErrEndConfirmPending):
		key = "errors.end_pending"
	case errors.Is(err, arena.ErrEndAlreadyAsked):
		key = "errors.end_already_asked"
	case errors.Is(err, arena.ErrNoEndRequest):
		key = "errors.no_end_request"
	case errors.Is(err, arena.ErrOwnEndRequest):
		key = "errors.own_end_request"
	case errors.Is(err, arena.ErrInvalidArgs):
		key = "errors.usage_challenge"
	case errors.Is(err, stats.ErrInvalidPage):
		key = "errors.invalid_page"
	case errors.Is(err, stats.ErrPersistenceUnavailable):
		key = "errors.stats_unavailable"
	default:
		obslog.L().Error("command_error", zap.String("room", room), zap.Error(err))
	}
	b.reply(room, key, data)
}

func (b *bot) reply(room, key string, data map[string]any) {
	b.sendText(room, b.cat.RenderOr(key, "Something went wrong.", data))
}

func (b *bot) sendText(room, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.egress.SendText(ctx, room, text); err != nil {
		obslog.L().Error("send_error", zap.String("room", room), zap.Error(err))
	}
}
