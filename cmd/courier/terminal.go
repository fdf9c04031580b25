// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/courier/engine"
	"github.com/bureau-foundation/courier/lib/eventtime"
	"github.com/bureau-foundation/courier/lib/ref"
	"github.com/bureau-foundation/courier/notify"
	"github.com/bureau-foundation/courier/roomstate"
)

// terminal renders session events as lines on out. It is the engine's
// RenderSink and Notifier, and it tracks which room has focus.
type terminal struct {
	location *time.Location

	styleTime    lipgloss.Style
	styleRoom    lipgloss.Style
	styleSender  lipgloss.Style
	styleNotice  lipgloss.Style
	styleStatus  lipgloss.Style
	styleRedacts lipgloss.Style

	mu      sync.Mutex
	out     io.Writer
	focused ref.RoomID
	lastDay map[ref.RoomID]time.Time
}

var _ engine.RenderSink = (*terminal)(nil)
var _ notify.Notifier = (*terminal)(nil)

// newTerminal detects the color profile of out from the environment.
func newTerminal(out io.Writer, location *time.Location) *terminal {
	return newTerminalWithProfile(out, location, termenv.NewOutput(out).EnvColorProfile())
}

func newTerminalWithProfile(out io.Writer, location *time.Location, profile termenv.Profile) *terminal {
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return &terminal{
		location:     location,
		styleTime:    renderer.NewStyle().Foreground(lipgloss.Color("8")),
		styleRoom:    renderer.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		styleSender:  renderer.NewStyle().Foreground(lipgloss.Color("3")),
		styleNotice:  renderer.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		styleStatus:  renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		styleRedacts: renderer.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true),
		out:          out,
		lastDay:      make(map[ref.RoomID]time.Time),
	}
}

// Printf writes one status line.
func (t *terminal) Printf(format string, args ...any) {
	t.writeLine(t.styleNotice.Render("-- " + fmt.Sprintf(format, args...)))
}

func (t *terminal) writeLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}

// Focused reports whether roomID is the focused room.
func (t *terminal) Focused(roomID ref.RoomID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused == roomID
}

func (t *terminal) focus(roomID ref.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focused = roomID
}

func (t *terminal) focusedRoom() ref.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused
}

func (t *terminal) RoomCreated(room *roomstate.Room) {
	t.Printf("joined %s (%s)", room.Title(), room.ID())
}

func (t *terminal) MembershipChanged(room *roomstate.Room, user ref.UserID, previous roomstate.Member, existed bool, current roomstate.Member) {
	name := room.DisplayName(user)
	var verb string
	switch current.Membership {
	case roomstate.Join:
		if existed && previous.Membership == roomstate.Join {
			if previous.DisplayName == current.DisplayName {
				return
			}
			verb = "is now known as " + current.DisplayName
			name = user.String()
		} else {
			verb = "joined"
		}
	case roomstate.Invite:
		verb = "was invited"
	case roomstate.Leave:
		verb = "left"
	case roomstate.Ban:
		verb = "was banned"
	}
	t.writeLine(t.styleRoom.Render(room.Title()) + " " + t.styleNotice.Render(name+" "+verb))
}

func (t *terminal) PresenceChanged(user ref.UserID, presence engine.Presence) {
	line := fmt.Sprintf("%s is %s", user, presence.State)
	if presence.StatusMessage != "" {
		line += " (" + presence.StatusMessage + ")"
	}
	t.writeLine(t.styleNotice.Render(line))
}

// TypingChanged shows typing only for the focused room.
func (t *terminal) TypingChanged(room *roomstate.Room, users []ref.UserID) {
	if !t.Focused(room.ID()) || len(users) == 0 {
		return
	}
	names := make([]string, len(users))
	for index, user := range users {
		names[index] = room.DisplayName(user)
	}
	t.writeLine(t.styleNotice.Render(strings.Join(names, ", ") + " typing"))
}

func (t *terminal) MessageAppended(room *roomstate.Room, entry roomstate.Entry) {
	t.writeLine(t.formatEntry(room, entry))
}

// formatEntry renders one history entry, preceded by a day marker when
// the entry starts a new day in its room.
func (t *terminal) formatEntry(room *roomstate.Room, entry roomstate.Entry) string {
	when := eventtime.Time(entry.Timestamp)

	var builder strings.Builder
	t.mu.Lock()
	last, seen := t.lastDay[room.ID()]
	if !seen || !eventtime.SameDay(last, when, t.location) {
		builder.WriteString(t.styleNotice.Render("--- " + eventtime.DayMarker(when, t.location) + " ---"))
		builder.WriteByte('\n')
	}
	t.lastDay[room.ID()] = when
	t.mu.Unlock()

	builder.WriteString(t.styleTime.Render(eventtime.Clock(when, t.location)))
	builder.WriteByte(' ')
	builder.WriteString(t.styleRoom.Render(room.Title()))
	builder.WriteByte(' ')
	builder.WriteString(t.styleSender.Render("<" + room.DisplayName(entry.Event.Sender) + ">"))
	builder.WriteByte(' ')
	if entry.Redacted {
		builder.WriteString(t.styleRedacts.Render("message deleted"))
	} else {
		builder.WriteString(notify.Sanitize(entry.Event.ContentString("body"), false))
	}
	return builder.String()
}

func (t *terminal) RoomSurfaced(room *roomstate.Room) {
	t.focus(room.ID())
	t.Printf("now in %s", room.Title())
}

func (t *terminal) Status(message string) {
	t.writeLine(t.styleStatus.Render("!! " + message))
}

// Notify prints a notification line carrying the id /show accepts.
func (t *terminal) Notify(ctx context.Context, notification notify.Notification) (string, error) {
	id := notify.NotificationID(notification.RoomID, notification.EventID)
	t.writeLine(t.styleStatus.Render("[" + id + "]") + " " + notification.Title + ": " + notification.Body)
	return id, nil
}
