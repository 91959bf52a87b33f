package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"freenow/internal/dto"
	"freenow/internal/intake"
	"freenow/internal/render"
	"freenow/internal/service"
	"freenow/internal/timetable"
)

const helpText = `I track everyone's class timetable and tell you who is free.

/freenow - who is free right now
/freeuntil - how long everyone is free or busy
/freewhen <name> - when someone is next free
/timetable - combined timetable image
/export - combined timetable spreadsheet
/ics <name> - calendar file for one person
/new - add or replace a timetable
/list - everyone tracked in this chat
/remove <name> - stop tracking someone
/cancel - abort /new
/token - API token for this chat (sent privately)`

const noStudentsText = "No timetables yet. Send /new to add one."

const (
	tokenSentText         = "I've sent you the API token in a private message."
	tokenNeedsPrivateText = "For security I only send tokens privately. Start a chat with me first, then send /token here again."
)

// tokenText 令牌消息：第二行为令牌本身
func tokenText(private bool, expires time.Time, token string) string {
	target := "this chat"
	if !private {
		target = "your group chat"
	}
	return fmt.Sprintf("API token for %s (expires %s):\n%s", target, expires.Format("2006-01-02 15:04"), token)
}

func promptFor(s intake.State) string {
	switch s {
	case intake.AwaitingName:
		return "What name should I use? (or /cancel)"
	case intake.AwaitingColor:
		return "Pick a colour: " + strings.Join(render.PaletteNames(), ", ") + " or a hex code like #1f77b4."
	case intake.AwaitingLink:
		return "Send the NUSMods share link."
	}
	return ""
}

func invalidInputText(err error) (string, bool) {
	switch {
	case errors.Is(err, intake.ErrInvalidName):
		return "Names must be 1-32 characters and cannot start with /.", true
	case errors.Is(err, render.ErrInvalidColor):
		return "That is not a colour I know.", true
	case errors.Is(err, timetable.ErrEmptyShareLink):
		return "That link has no modules in it.", true
	case errors.Is(err, timetable.ErrInvalidShareLink):
		return "I couldn't read that link.", true
	}
	return "", false
}

func saveErrorText(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrDuplicateStudent), errors.Is(err, service.ErrConflict):
		return "Someone else changed that timetable at the same time. Please try /new again.", true
	}
	return invalidInputText(err)
}

func formatSaved(resp *dto.SaveStudentResponse) string {
	verb := "Added"
	if resp.Replaced {
		verb = "Updated"
	}
	return fmt.Sprintf("%s %s (%d classes across %d modules).",
		verb, resp.Student.Name, resp.Student.Classes, len(resp.Student.Timetable))
}

func formatFreeNow(resp *dto.AvailabilityResponse) string {
	if len(resp.Students) == 0 {
		return noStudentsText
	}
	var b strings.Builder
	if len(resp.Free) == 0 {
		fmt.Fprintf(&b, "Nobody is free right now (%s).", resp.At)
	} else {
		fmt.Fprintf(&b, "Free now (%s): %s", resp.At, strings.Join(resp.Free, ", "))
	}
	writeProblems(&b, resp.Students)
	return b.String()
}

func formatFreeUntil(resp *dto.AvailabilityResponse) string {
	if len(resp.Students) == 0 {
		return noStudentsText
	}
	var b strings.Builder
	fmt.Fprintf(&b, "As of %s:", resp.At)
	for _, st := range resp.Students {
		fmt.Fprintf(&b, "\n%s: %s", st.Name, statusText(st))
	}
	writeProblems(&b, resp.Students)
	return b.String()
}

func formatFreeWhen(resp *dto.FreeWhenResponse) string {
	st := resp.Student
	var text string
	switch st.Kind {
	case service.KindBusy:
		text = fmt.Sprintf("%s is in class, free at %s.", st.Name, st.Time)
	case service.KindFreeUntil:
		text = fmt.Sprintf("%s is free now, next class at %s.", st.Name, st.Time)
	case service.KindFree:
		text = fmt.Sprintf("%s is free for the rest of the day.", st.Name)
	default:
		text = fmt.Sprintf("I couldn't work out %s's timetable.", st.Name)
	}
	if len(st.Warnings) > 0 {
		text += fmt.Sprintf("\n(%d modules could not be looked up)", len(st.Warnings))
	}
	return text
}

func statusText(st dto.StudentStatus) string {
	switch st.Kind {
	case service.KindBusy:
		return "busy until " + st.Time
	case service.KindFreeUntil:
		return "free until " + st.Time
	case service.KindFree:
		return "free for the rest of the day"
	}
	return "timetable unavailable"
}

// writeProblems 追加无法解析的学生与部分失败提示
func writeProblems(b *strings.Builder, students []dto.StudentStatus) {
	var unresolved, partial []string
	for _, st := range students {
		switch {
		case st.Kind == service.KindUnresolvable:
			unresolved = append(unresolved, st.Name)
		case len(st.Warnings) > 0:
			partial = append(partial, st.Name)
		}
	}
	if len(unresolved) > 0 {
		fmt.Fprintf(b, "\nCouldn't load: %s", strings.Join(unresolved, ", "))
	}
	if len(partial) > 0 {
		fmt.Fprintf(b, "\nSome modules missing for: %s", strings.Join(partial, ", "))
	}
}

func formatList(students []dto.StudentResponse) string {
	if len(students) == 0 {
		return noStudentsText
	}
	var b strings.Builder
	b.WriteString("Tracked timetables:")
	for _, s := range students {
		fmt.Fprintf(&b, "\n%s (%s) - %d classes", s.Name, s.Color, s.Classes)
	}
	return b.String()
}

func warningCaption(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	return fmt.Sprintf("%d modules could not be looked up.", len(warnings))
}
