package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/arena"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/obslog"
)

// chatSink renders session events into chat messages.
type chatSink struct {
	egress         irisfast.Egress
	cat            *msgcat.Catalog
	reg            *gamekit.Registry
	prefix         string
	endConfirmSecs int
}

func newChatSink(egress irisfast.Egress, cat *msgcat.Catalog, reg *gamekit.Registry, prefix string, endConfirm time.Duration) *chatSink {
	return &chatSink{
		egress:         egress,
		cat:            cat,
		reg:            reg,
		prefix:         prefix,
		endConfirmSecs: int(endConfirm.Seconds()),
	}
}

func (s *chatSink) send(room, key, fallback string, data map[string]any) {
	text := s.cat.RenderOr(key, fallback, data)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.egress.SendText(ctx, room, text); err != nil {
		obslog.L().Error("send_error", zap.String("room", room), zap.Error(err))
	}
}

func (s *chatSink) simultaneous(gameTypeID int) bool {
	rules, err := s.reg.Get(gameTypeID)
	return err == nil && rules.Simultaneous()
}

func (s *chatSink) help(gameTypeID int) string {
	rules, err := s.reg.Get(gameTypeID)
	if err != nil {
		return ""
	}
	return rules.Help()
}

func (s *chatSink) ChallengeIssued(v arena.ChallengeView) {
	s.send(v.Room, "challenge.issued",
		fmt.Sprintf("%s challenged %s to %s!", v.Challenger.Name, v.Challenged.Name, v.GameName),
		map[string]any{
			"Challenger": v.Challenger.Name,
			"Challenged": v.Challenged.Name,
			"Game":       v.GameName,
			"Prefix":     s.prefix,
			"Seconds":    int(v.ExpiresIn.Seconds()),
		})
}

func (s *chatSink) ChallengeDeclined(v arena.ChallengeView) {
	s.send(v.Room, "challenge.declined",
		fmt.Sprintf("%s declined the challenge.", v.Challenged.Name),
		map[string]any{"Challenged": v.Challenged.Name, "Game": v.GameName})
}

func (s *chatSink) ChallengeExpired(v arena.ChallengeView) {
	s.send(v.Room, "challenge.expired",
		"The challenge expired.",
		map[string]any{"Challenged": v.Challenged.Name, "Game": v.GameName})
}

func (s *chatSink) SessionStarted(v arena.SessionView) {
	s.send(v.Room, "session.started",
		fmt.Sprintf("%s: %s vs %s\n%s", v.GameName, v.Players[0].Name, v.Players[1].Name, v.Board),
		map[string]any{
			"Game":    v.GameName,
			"Player0": v.Players[0].Name,
			"Player1": v.Players[1].Name,
			"Board":   v.Board,
			"Turn":    v.TurnPlayer().Name,
			"Help":    s.help(v.GameTypeID),
		})
}

func (s *chatSink) StateUpdated(v arena.SessionView) {
	if s.simultaneous(v.GameTypeID) {
		s.send(v.Room, "session.update_simultaneous", v.Board, map[string]any{"Board": v.Board})
		return
	}
	data := map[string]any{"Board": v.Board, "Turn": v.TurnPlayer().Name, "Note": v.Note}
	if v.Note != "" {
		s.send(v.Room, "session.update_note", v.Note+"\n"+v.Board, data)
		return
	}
	s.send(v.Room, "session.update", v.Board, data)
}

func (s *chatSink) SessionCompleted(v arena.SessionView, out arena.Outcome) {
	if out.Draw {
		s.send(v.Room, "session.draw",
			fmt.Sprintf("%s ends in a draw.\n%s", v.GameName, v.Board),
			map[string]any{"Game": v.GameName, "Board": v.Board})
		return
	}
	s.send(v.Room, "session.won",
		fmt.Sprintf("%s wins %s!\n%s", out.Players[out.Winner].Name, v.GameName, v.Board),
		map[string]any{
			"Game":   v.GameName,
			"Board":  v.Board,
			"Winner": out.Players[out.Winner].Name,
		})
}

func (s *chatSink) SessionAbandoned(v arena.SessionView, quitter arena.PlayerRef, out arena.Outcome) {
	if out.Winner < 0 {
		s.send(v.Room, "session.abandoned_both",
			fmt.Sprintf("The %s game was closed for inactivity.", v.GameName),
			map[string]any{
				"Game":    v.GameName,
				"Player0": v.Players[0].Name,
				"Player1": v.Players[1].Name,
			})
		return
	}
	s.send(v.Room, "session.abandoned",
		fmt.Sprintf("%s gave up. %s wins.", quitter.Name, out.Players[out.Winner].Name),
		map[string]any{
			"Game":    v.GameName,
			"Quitter": quitter.Name,
			"Winner":  out.Players[out.Winner].Name,
		})
}

func (s *chatSink) EndConfirmationRequested(v arena.SessionView, by arena.PlayerRef) {
	other := v.Players[0]
	if other.ID == by.ID {
		other = v.Players[1]
	}
	s.send(v.Room, "session.end_requested",
		fmt.Sprintf("%s wants to end the game.", by.Name),
		map[string]any{
			"By":      by.Name,
			"Other":   other.Name,
			"Game":    v.GameName,
			"Prefix":  s.prefix,
			"Seconds": s.endConfirmSecs,
		})
}

func (s *chatSink) EndConfirmationResolved(v arena.SessionView, accepted bool) {
	if accepted {
		s.send(v.Room, "session.end_accepted", "Both players agreed to end the game.", nil)
		return
	}
	s.send(v.Room, "session.end_declined", "The game continues.", nil)
}
