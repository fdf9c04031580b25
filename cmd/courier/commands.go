// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bureau-foundation/courier/engine"
	"github.com/bureau-foundation/courier/lib/eventtime"
	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/roomstate"
)

type exitReason int

const (
	exitQuit exitReason = iota
	exitLogout
)

const defaultBackfillLimit = 20

const helpText = `commands:
  /rooms                 list joined rooms
  /room <n|room-id>      focus a room and mark it read
  /show <id>             jump to the room of a notification
  /back [n]              fetch n older messages in the focused room
  /membership on|off     show join and leave lines
  /presence on|off       show presence changes
  /resume                restart a stopped sync loop
  /quit                  exit, keeping the login for next time
  /logout                exit and invalidate the login
anything else is sent to the focused room`

// command is one parsed input line. A line without a leading slash is a
// message with name "".
type command struct {
	name string
	args []string
	text string
}

func parseCommand(line string) command {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") {
		// "//text" sends "/text".
		return command{text: trimmed[1:]}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return command{text: strings.TrimRight(line, "\r\n")}
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return command{name: "help"}
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}
}

// interact reads lines from input until /quit, /logout, end of input or
// ctx cancellation.
func interact(ctx context.Context, session *engine.Session, terminal *terminal, input io.Reader) exitReason {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return exitQuit
		case line, ok := <-lines:
			if !ok {
				return exitQuit
			}
			if reason, done := execute(ctx, session, terminal, parseCommand(line)); done {
				return reason
			}
		}
	}
}

// execute runs one command. done is true when the client should exit.
func execute(ctx context.Context, session *engine.Session, terminal *terminal, cmd command) (reason exitReason, done bool) {
	switch cmd.name {
	case "":
		if strings.TrimSpace(cmd.text) == "" {
			return exitQuit, false
		}
		focused := terminal.focusedRoom()
		if focused.IsZero() {
			terminal.Printf("no room focused; use /room")
			return exitQuit, false
		}
		if _, err := session.Send(ctx, focused, cmd.text); err != nil {
			terminal.Status(err.Error())
		}

	case "help":
		terminal.writeLine(helpText)

	case "rooms":
		for index, room := range session.Rooms() {
			unread := room.Unread()
			terminal.Printf("%d. %s (%s) %d unread, %d highlights",
				index+1, room.Title(), room.ID(), unread.NotificationCount, unread.HighlightCount)
		}

	case "room":
		if len(cmd.args) != 1 {
			terminal.Printf("usage: /room <n|room-id>")
			return exitQuit, false
		}
		room, err := resolveRoom(session.Rooms(), cmd.args[0])
		if err != nil {
			terminal.Printf("%v", err)
			return exitQuit, false
		}
		terminal.focus(room.ID())
		session.FocusChanged(ctx, room.ID())
		terminal.Printf("now in %s: %s", room.Title(), room.Topic())

	case "show":
		if len(cmd.args) != 1 || !session.ShowNotification(cmd.args[0]) {
			terminal.Printf("no such notification")
			return exitQuit, false
		}
		session.FocusChanged(ctx, terminal.focusedRoom())

	case "back":
		limit := defaultBackfillLimit
		if len(cmd.args) == 1 {
			parsed, err := strconv.Atoi(cmd.args[0])
			if err != nil || parsed <= 0 {
				terminal.Printf("usage: /back [n]")
				return exitQuit, false
			}
			limit = parsed
		}
		backfill(ctx, session, terminal, limit)

	case "membership", "presence":
		enabled, ok := parseSwitch(cmd.args)
		if !ok {
			terminal.Printf("usage: /%s on|off", cmd.name)
			return exitQuit, false
		}
		toggles := session.Toggles()
		if cmd.name == "membership" {
			toggles.Membership = enabled
		} else {
			toggles.Presence = enabled
		}
		session.SetToggles(toggles)

	case "resume":
		if err := session.Resume(ctx); err != nil {
			terminal.Printf("%v", err)
		}

	case "quit":
		return exitQuit, true
	case "logout":
		return exitLogout, true

	default:
		terminal.Printf("unknown command /%s (try /help)", cmd.name)
	}
	return exitQuit, false
}

func backfill(ctx context.Context, session *engine.Session, terminal *terminal, limit int) {
	roomID := terminal.focusedRoom()
	room, ok := session.Room(roomID)
	if !ok {
		terminal.Printf("no room focused; use /room")
		return
	}
	events, err := session.Backfill(ctx, roomID, limit)
	if err != nil {
		terminal.Status(err.Error())
		return
	}
	if len(events) == 0 {
		terminal.Printf("no older messages in %s", room.Title())
		return
	}
	terminal.Printf("%d older events in %s", len(events), room.Title())
	for _, event := range events {
		if event.Type != ref.EventTypeMessage {
			continue
		}
		terminal.writeLine(terminal.formatEntry(room, roomstate.Entry{
			Event:     event,
			Timestamp: eventtime.Corrected(event.OriginServerTS, event.Age()),
		}))
	}
}

// resolveRoom accepts a 1-based index into rooms or a room id.
func resolveRoom(rooms []*roomstate.Room, arg string) (*roomstate.Room, error) {
	if index, err := strconv.Atoi(arg); err == nil {
		if index < 1 || index > len(rooms) {
			return nil, fmt.Errorf("no room %d (there are %d)", index, len(rooms))
		}
		return rooms[index-1], nil
	}
	for _, room := range rooms {
		if room.ID().String() == arg || room.CanonicalAlias() == arg {
			return room, nil
		}
	}
	return nil, fmt.Errorf("not in room %s", arg)
}

func parseSwitch(args []string) (enabled, ok bool) {
	if len(args) != 1 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on", "yes", "true":
		return true, true
	case "off", "no", "false":
		return false, true
	}
	return false, false
}
