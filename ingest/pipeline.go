// Package ingest drives the chat read loop: frames are split into protocol
// lines, parsed, and dispatched by command type into the shared buffer. A
// timer task (flush.go) commits the buffer to Postgres.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-archiver/db"
	"github.com/onnwee/chat-archiver/irc"
	"github.com/onnwee/chat-archiver/telemetry"
)

// Conn is the transport surface the pipeline needs; *ws.Conn implements it.
type Conn interface {
	ReadFrame() (string, error)
	SendLine(line string) error
}

// Pipeline consumes frames from the transport and fills the shared buffer.
type Pipeline struct {
	Conn   Conn
	DB     *sql.DB
	Buffer *Buffer

	logger *slog.Logger
}

// Run blocks reading frames until the transport fails or ctx is cancelled.
// Individual bad lines are logged and skipped; the loop only stops on
// transport errors.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger = slog.Default().With(slog.String("component", "ingest"))

	// ReadFrame has no context; closing the transport unblocks it.
	if closer, ok := p.Conn.(io.Closer); ok {
		go func() {
			<-ctx.Done()
			if err := closer.Close(); err != nil {
				p.logger.Debug("transport close", slog.Any("err", err))
			}
		}()
	}

	for {
		frame, err := p.Conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		for _, line := range strings.Split(frame, "\r\n") {
			if line == "" {
				continue
			}
			p.handleLine(ctx, line)
		}
	}
}

func (p *Pipeline) handleLine(ctx context.Context, line string) {
	msg, err := irc.Parse(line)
	if err != nil {
		telemetry.ParseFailures.Inc()
		p.logger.Warn("parse failed, skipping line", slog.String("line", line), slog.Any("err", err))
		return
	}

	switch msg.Command.Type {
	case irc.CmdPing:
		// PONG bypasses the buffers; it must not wait on buffer locking.
		if err := p.Conn.SendLine("PONG :tmi.twitch.tv"); err != nil {
			p.logger.Warn("pong failed", slog.Any("err", err))
			return
		}
		telemetry.PongReplies.Inc()
	case irc.CmdPrivMsg:
		if err := p.handlePrivMsg(msg); err != nil {
			telemetry.DecodeFailures.Inc()
			p.logger.Warn("privmsg skipped", slog.String("line", line), slog.Any("err", err))
		}
	case irc.CmdClearMsg:
		if err := p.handleClearMsg(ctx, msg); err != nil {
			p.logger.Warn("clearmsg skipped", slog.String("line", line), slog.Any("err", err))
		}
	default:
		// JOIN and unknown verbs carry nothing to persist.
	}
}

func (p *Pipeline) handlePrivMsg(msg *irc.Message) error {
	if !msg.HasTrailing {
		return errors.New("privmsg without body")
	}
	tags, err := irc.ParsePrivMsgTags(msg.Tags)
	if err != nil {
		return err
	}
	if len(msg.Command.Params) == 0 {
		return errors.New("privmsg without channel param")
	}
	channelName := strings.TrimPrefix(msg.Command.Params[0], "#")

	ts := time.Now().UTC()
	if ms, err := strconv.ParseInt(tags.TmiSentTS, 10, 64); err == nil {
		ts = time.UnixMilli(ms).UTC()
	}

	p.Buffer.AppendUserIfAbsent(db.User{
		ID:          tags.UserID,
		Nick:        msg.Source.Nick,
		DisplayName: tags.DisplayName,
	})
	p.Buffer.AppendMessage(db.ChatMessage{
		MsgID:               tags.ID,
		ChannelID:           tags.RoomID,
		ChannelName:         channelName,
		UserID:              tags.UserID,
		Nick:                msg.Source.Nick,
		DisplayName:         tags.DisplayName,
		BadgeInfo:           tags.BadgeInfo,
		Badges:              strings.Join(tags.Badges, ","),
		Bits:                tags.Bits,
		Color:               tags.Color,
		Moderator:           tags.Moderator,
		Subscriber:          tags.Subscriber,
		Turbo:               tags.Turbo,
		VIP:                 tags.VIP,
		Admin:               tags.Admin,
		UserType:            string(tags.UserType),
		ReplyMsgID:          tags.ReplyParentMsgID,
		ReplyMsgNick:        tags.ReplyParentUserLogin,
		ReplyMsgDisplayName: tags.ReplyParentDisplayName,
		ReplyMsgBody:        tags.ReplyParentBody,
		Body:                msg.Trailing,
		Emotes:              tags.Emotes,
		Timestamp:           ts,
	})
	telemetry.MessagesIngested.Inc()
	return nil
}

// handleClearMsg soft-deletes the target message: in the pending buffer when
// it has not flushed yet, otherwise directly against the store. A target
// that exists nowhere is logged by the caller and dropped.
func (p *Pipeline) handleClearMsg(ctx context.Context, msg *irc.Message) error {
	tags, err := irc.ParseClearMsgTags(msg.Tags)
	if err != nil {
		telemetry.DecodeFailures.Inc()
		return err
	}
	now := time.Now().UTC()
	if p.Buffer.MarkDeleted(tags.TargetMsgID, now) {
		return nil
	}
	telemetry.ClearMsgFallbacks.Inc()
	if err := db.MarkMessageDeleted(ctx, p.DB, tags.TargetMsgID, now); err != nil {
		return err
	}
	return nil
}
